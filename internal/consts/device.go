package consts

// evdev フォースフィードバック用の IOCTL（input.h から、amd64/arm64 のレイアウト）
const (
	EVIOCSFF      = 0x40304580 // エフェクトのアップロード (_IOW('E', 0x80, struct ff_effect))
	EVIOCRMFF     = 0x40044581 // エフェクトの削除 (_IOW('E', 0x81, int))
	EVIOCGEFFECTS = 0x80044584 // 同時にアップロードできるエフェクト数 (_IOR('E', 0x84, int))
	EVIOCGRAB     = 0x40044590 // デバイスの排他制御用のIOCTL
	evIOCGBIT     = 0x80004520 // _IOC(_IOC_READ, 'E', 0x20+ev, len) の基底値
	evIOCGABS     = 0x80184540 // _IOR('E', 0x40+abs, struct input_absinfo) の基底値
)

// EVIOCGBIT はイベント種別 ev のビットマップ取得用 IOCTL 番号を返す
func EVIOCGBIT(ev, length int) uintptr {
	return uintptr(evIOCGBIT | (length << 16) | ev)
}

// EVIOCGABS は絶対座標軸 abs の状態取得用 IOCTL 番号を返す
func EVIOCGABS(abs int) uintptr {
	return uintptr(evIOCGABS + abs)
}

// その他のデバイス定数
const (
	FFCnt      = 0x80 // FF ビットマップのビット数 (FF_CNT)
	EvCnt      = 0x20 // イベント種別ビットマップのビット数 (EV_CNT)
	MaxLength  = 0x7fff
	AxisMinOut = -32768 // 正規化後の軸の最小値
	AxisMaxOut = 32767  // 正規化後の軸の最大値
)
