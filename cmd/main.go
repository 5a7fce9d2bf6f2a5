package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/browser"

	"github.com/char5742/wheel-ffb/internal/api"
	"github.com/char5742/wheel-ffb/internal/config"
	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/telemetry"
	"github.com/char5742/wheel-ffb/internal/wheel"
)

// 終了時に呼ぶ後始末。エフェクトを止めずに終了するとハンドルが回り続ける
var (
	cleanupMutex sync.Mutex
	cleanup      func()
)

func setCleanup(fn func()) {
	cleanupMutex.Lock()
	cleanup = fn
	cleanupMutex.Unlock()
}

func runCleanup() {
	cleanupMutex.Lock()
	fn := cleanup
	cleanup = nil
	cleanupMutex.Unlock()
	if fn != nil {
		fn()
	}
}

func main() {
	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーモードで起動します")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	port := flag.Int("port", 0, "APIサーバーのポート番号 (0 なら設定ファイルの値)")
	useSim := flag.Bool("sim", false, "実機の代わりにシミュレータを使います")
	device := flag.String("device", "", "ハンドルのデバイスパス (/dev/input/eventN)")
	openBrowser := flag.Bool("open", false, "APIモードで状態をブラウザで開きます")
	flag.Usage = usage
	flag.Parse()

	// 設定ファイルパスの決定
	cfgPath := config.GetDefaultConfigPath()
	if *configPath != "" {
		cfgPath = *configPath
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("設定ファイルの読み込みに失敗しました: %v\nデフォルト設定を使用します\n", err)
		cfg = config.DefaultConfig()
	} else {
		fmt.Printf("設定ファイルを読み込みました: %s\n", cfgPath)
	}
	if *useSim {
		cfg.Sim.Enabled = true
	}
	if *device != "" {
		cfg.Device.Path = *device
	}
	if *port != 0 {
		cfg.API.Port = *port
	}

	// シグナルハンドラの設定
	handleSignals()

	if *useApi {
		fmt.Printf("APIサーバーモードで起動します (ポート: %d)...\n", cfg.API.Port)
		runApiServer(cfg, cfgPath, *openBrowser)
		return
	}

	if err := runCLI(cfg, flag.Args()); err != nil {
		runCleanup()
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
	runCleanup()
}

func usage() {
	fmt.Fprintf(os.Stderr, `使い方: %s [フラグ] <コマンド>

コマンド:
  caps                       デバイスの能力を表示します
  calibrate                  ロック・中心・ノイズ幅を求めます
  goto <角度> [slow|fast|full] 指定した角度へ移動します
  centre                     中心へ戻します
  profile                    力の段階ごとの移動量を測定します
  range                      ロックに当たらないオフセットを探します
  force <段階>               段階 (0..32) で実際に出力される力を表示します
  test                       各エフェクトを順に再生して自己診断します

フラグ:
`, os.Args[0])
	flag.PrintDefaults()
}

// APIサーバーモードでの実行
func runApiServer(cfg *config.Config, cfgPath string, openBrowser bool) {
	server := api.NewServer(cfg, cfgPath, cfg.API.Port)
	setCleanup(func() {
		if err := server.Stop(); err != nil {
			log.Printf("APIサーバーの停止に失敗しました: %v", err)
		}
	})

	if openBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			url := fmt.Sprintf("http://localhost:%d/api/service/status", cfg.API.Port)
			if err := browser.OpenURL(url); err != nil {
				log.Printf("ブラウザを開けませんでした: %v", err)
			}
		}()
	}

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("APIサーバーの起動に失敗しました: %v", err)
	}
}

// CLIモードでの実行
func runCLI(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("コマンドを指定してください")
	}

	var pub telemetry.Publisher = telemetry.Nop{}
	if cfg.Telemetry.MQTTEnabled {
		p, err := telemetry.NewMQTTPublisher(cfg.Telemetry.MQTTBroker, cfg.Telemetry.MQTTClientID, cfg.Telemetry.MQTTPrefix)
		if err != nil {
			log.Printf("MQTTブローカーへの接続に失敗しました: %v", err)
		} else {
			defer p.Close()
			pub = p
		}
	}

	service := api.NewWheelService(cfg, pub)
	if err := service.Start(); err != nil {
		return fmt.Errorf("ハンドル制御サービスの起動に失敗しました: %w", err)
	}
	setCleanup(func() {
		if err := service.Stop(); err != nil && !errors.Is(err, api.ErrNotRunning) {
			log.Printf("サービスの停止に失敗しました: %v", err)
		}
	})

	return service.Do(func(w *wheel.Wheel) error {
		return runCommand(w, args)
	})
}

func runCommand(w *wheel.Wheel, args []string) error {
	switch args[0] {
	case "caps":
		s := w.Session()
		fmt.Printf("能力: %s\n", s.Capabilities())
		if g, ok := s.MaxGain(); ok {
			fmt.Printf("最大ゲイン: %d%%\n", g)
		}
		if n, ok := s.Capacity(); ok {
			fmt.Printf("エフェクト数: %d\n", n)
		}
		return nil

	case "calibrate":
		if err := w.Calibrate(); err != nil {
			return err
		}
		printCalibration(w.Calibration())
		return nil

	case "goto":
		if len(args) < 2 {
			return errors.New("goto には角度を指定してください")
		}
		angle, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("角度 %q: %w", args[1], err)
		}
		speed := ""
		if len(args) > 2 {
			speed = args[2]
		}
		seek, err := seeker(w, speed)
		if err != nil {
			return err
		}
		if err := w.Calibrate(); err != nil {
			return err
		}
		err = seek(angle)
		var mismatch *wheel.MismatchError
		if errors.As(err, &mismatch) {
			fmt.Printf("目標 %d° に対して %d° で停止しました\n", mismatch.Target, mismatch.Final)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d° へ移動しました\n", angle)
		return nil

	case "centre", "center":
		if err := w.Centre(); err != nil {
			return err
		}
		pos, err := w.Position()
		if err != nil {
			return err
		}
		fmt.Printf("中心へ戻しました (pos=%d)\n", pos)
		return nil

	case "profile":
		if err := w.Calibrate(); err != nil {
			return err
		}
		table, err := w.Profile()
		if err != nil {
			return err
		}
		printProfile(table)
		return nil

	case "range":
		if err := w.Calibrate(); err != nil {
			return err
		}
		offset, err := w.FindRangeOffset()
		if err != nil {
			return err
		}
		fmt.Printf("オフセット: %v\n", offset)
		return nil

	case "force":
		if len(args) < 2 {
			return errors.New("force には段階を指定してください")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("段階 %q: %w", args[1], err)
		}
		level, err := haptic.ParseLevel(n)
		if err != nil {
			return err
		}
		fmt.Printf("段階 %d: 力 %d\n", level, w.ConvertLevelToForce(level))
		return nil

	case "test":
		steps, err := w.SelfTest()
		printSelfTest(steps)
		return err

	default:
		usage()
		return fmt.Errorf("不明なコマンド %q", args[0])
	}
}

func seeker(w *wheel.Wheel, speed string) (func(int) error, error) {
	switch speed {
	case "", "default":
		return w.GotoAngle, nil
	case "slow":
		return w.GotoAngleSlow, nil
	case "fast":
		return w.GotoAngleFast, nil
	case "full":
		return w.GotoAngleFull, nil
	default:
		return nil, fmt.Errorf("不明な速度 %q (slow|fast|full)", speed)
	}
}

func printCalibration(c wheel.Calibration) {
	fmt.Printf("左ロック: %d\n右ロック: %d\n中心: %d\nジッター: %d\n", c.LeftLock, c.RightLock, c.Centre, c.Jitter)
}

func printProfile(t wheel.ProfileTable) {
	fmt.Println("段階\t左\t右")
	for _, l := range haptic.Levels() {
		fmt.Printf("%d\t%d\t%d\n", l, t[haptic.Left][l], t[haptic.Right][l])
	}
	for _, dir := range []haptic.Direction{haptic.Left, haptic.Right} {
		if !t.Monotonic(dir) {
			fmt.Printf("注意: %s 方向は単調ではありません\n", strings.ToUpper(dir.String()))
		}
	}
}

func printSelfTest(steps []wheel.TestStep) {
	for _, st := range steps {
		switch {
		case st.Skipped:
			fmt.Printf("%-18s 省略\n", st.Name)
		case st.OK:
			fmt.Printf("%-18s OK\n", st.Name)
		default:
			fmt.Printf("%-18s 失敗: %s\n", st.Name, st.Error)
		}
	}
}

func handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("シャットダウンします...")
		runCleanup()
		os.Exit(0)
	}()
}
