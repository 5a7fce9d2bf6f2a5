package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/char5742/wheel-ffb/internal/config"
	"github.com/char5742/wheel-ffb/internal/features"
	"github.com/char5742/wheel-ffb/internal/haptic"
	"github.com/char5742/wheel-ffb/internal/wheel"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// デバイス関連のエンドポイント
	router.HandleFunc("GET /api/devices", s.handleGetDevices)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// ハンドル操作のエンドポイント
	router.HandleFunc("GET /api/wheel", s.handleWheelStatus)
	router.HandleFunc("POST /api/wheel/calibrate", s.handleCalibrate)
	router.HandleFunc("POST /api/wheel/goto", s.handleGoto)
	router.HandleFunc("POST /api/wheel/centre", s.handleCentre)
	router.HandleFunc("GET /api/wheel/profile", s.handleGetProfile)
	router.HandleFunc("POST /api/wheel/profile", s.handleRunProfile)
	router.HandleFunc("POST /api/wheel/range", s.handleRangeOffset)
	router.HandleFunc("GET /api/wheel/closest", s.handleClosestLevel)
	router.HandleFunc("GET /api/wheel/force", s.handleLevelForce)
	router.HandleFunc("PUT /api/wheel/gain", s.handleSetGain)
	router.HandleFunc("POST /api/wheel/test", s.handleSelfTest)

	// イベント配信
	router.Handle("GET /ws", s.hub)
	if s.metrics != nil {
		router.Handle("GET /metrics", s.metrics.Handler())
	}

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ。送られなかった項目は現在の値を保つ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	newConfig := *s.GetConfig()
	newConfig.Sim.Wheel.Capabilities = append([]string(nil), newConfig.Sim.Wheel.Capabilities...)
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}

	s.UpdateConfig(&newConfig)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&saveRequest); err != nil {
			writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
			return
		}
	}

	configPath := saveRequest.Path
	if configPath == "" {
		configPath = s.configPath
	}
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// デバイス一覧取得ハンドラ
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := features.GetDevices()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "デバイス一覧の取得に失敗しました: "+err.Error())
		return
	}
	if devices == nil {
		devices = []features.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	if s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}
	if err := s.service.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの起動に失敗しました: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "device": s.service.Device()})
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	if !s.service.IsRunning() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
		return
	}
	if err := s.service.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの停止に失敗しました: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if s.service.IsRunning() {
		status = "running"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "device": s.service.Device()})
}

// wheelStatus はハンドルの現在の状態
type wheelStatus struct {
	Device       string            `json:"device"`
	Capabilities []string          `json:"capabilities"`
	Calibration  wheel.Calibration `json:"calibration"`
	State        string            `json:"state"`
	Position     int               `json:"position"`
	Angle        *int              `json:"angle,omitempty"`
	Gain         int               `json:"gain"`
	Playing      int               `json:"playing"`
	Capacity     *int              `json:"capacity,omitempty"`
}

// ハンドル状態取得ハンドラ
func (s *Server) handleWheelStatus(w http.ResponseWriter, r *http.Request) {
	var st wheelStatus
	err := s.service.Do(func(wh *wheel.Wheel) error {
		pos, err := wh.Position()
		if err != nil {
			return err
		}
		cal := wh.Calibration()
		st = wheelStatus{
			Device:       s.service.Device(),
			Capabilities: wh.Session().Capabilities().Names(),
			Calibration:  cal,
			State:        cal.State.String(),
			Position:     pos,
			Gain:         wh.Session().Gain(),
			Playing:      wh.Session().NumPlaying(),
		}
		if n, ok := wh.Session().Capacity(); ok {
			st.Capacity = &n
		}
		if cal.RangeKnown() {
			angle := wh.CalculateAngle(pos)
			st.Angle = &angle
		}
		return nil
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// 校正ハンドラ
func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var cal wheel.Calibration
	err := s.service.Do(func(wh *wheel.Wheel) error {
		err := wh.Calibrate()
		cal = wh.Calibration()
		return err
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

// 角度移動ハンドラ
func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Angle *int   `json:"angle"`
		Speed string `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Angle == nil {
		writeError(w, http.StatusBadRequest, "角度を指定してください")
		return
	}

	var final int
	err := s.service.Do(func(wh *wheel.Wheel) error {
		var seek func(int) error
		switch req.Speed {
		case "", "default":
			seek = wh.GotoAngle
		case "slow":
			seek = wh.GotoAngleSlow
		case "fast":
			seek = wh.GotoAngleFast
		case "full":
			seek = wh.GotoAngleFull
		default:
			return fmt.Errorf("不明な速度 %q: %w", req.Speed, errBadRequest)
		}
		err := seek(*req.Angle)
		if a, aerr := wh.Angle(); aerr == nil {
			final = a
		}
		return err
	})

	var mismatch *wheel.MismatchError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"target": *req.Angle, "angle": final, "exact": true})
	case errors.As(err, &mismatch):
		// 移動自体は完了している
		writeJSON(w, http.StatusOK, map[string]any{"target": *req.Angle, "angle": mismatch.Final, "exact": false})
	default:
		writeWheelError(w, err)
	}
}

// センタリングハンドラ
func (s *Server) handleCentre(w http.ResponseWriter, r *http.Request) {
	var pos int
	err := s.service.Do(func(wh *wheel.Wheel) error {
		if err := wh.Centre(); err != nil {
			return err
		}
		p, err := wh.Position()
		pos = p
		return err
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"position": pos})
}

// プロファイル取得ハンドラ
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	var table wheel.ProfileTable
	err := s.service.Do(func(wh *wheel.Wheel) error {
		table = wh.ProfileTable()
		return nil
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(table))
}

// プロファイル実行ハンドラ。完了までブロックする
func (s *Server) handleRunProfile(w http.ResponseWriter, r *http.Request) {
	var table wheel.ProfileTable
	err := s.service.Do(func(wh *wheel.Wheel) error {
		t, err := wh.Profile()
		table = t
		return err
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(table))
}

func profileResponse(t wheel.ProfileTable) map[string]any {
	return map[string]any{
		"left":  t[haptic.Left],
		"right": t[haptic.Right],
	}
}

// 端の回避オフセット探索ハンドラ
func (s *Server) handleRangeOffset(w http.ResponseWriter, r *http.Request) {
	var offsetMs int64
	err := s.service.Do(func(wh *wheel.Wheel) error {
		offset, err := wh.FindRangeOffset()
		offsetMs = offset.Milliseconds()
		return err
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"offset_ms": offsetMs})
}

// 距離に最も近い強さの段階を返すハンドラ
func (s *Server) handleClosestLevel(w http.ResponseWriter, r *http.Request) {
	distance, err := strconv.Atoi(r.URL.Query().Get("distance"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "distance を整数で指定してください")
		return
	}
	dir, err := parseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var level haptic.Level
	var force int
	err = s.service.Do(func(wh *wheel.Wheel) error {
		level = wh.ClosestEffectLevel(distance, dir)
		force = wh.ConvertLevelToForce(level)
		return nil
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"level": int(level), "force": force})
}

// 段階に対応する実際の力を返すハンドラ
func (s *Server) handleLevelForce(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "level を整数で指定してください")
		return
	}
	level, err := haptic.ParseLevel(n)
	if err != nil {
		writeWheelError(w, err)
		return
	}

	var force int
	err = s.service.Do(func(wh *wheel.Wheel) error {
		force = wh.ConvertLevelToForce(level)
		return nil
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"level": int(level), "force": force})
}

// 自己診断ハンドラ。完了までブロックし、項目ごとの結果を返す
func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	var steps []wheel.TestStep
	err := s.service.Do(func(wh *wheel.Wheel) error {
		st, err := wh.SelfTest()
		steps = st
		return err
	})
	if err != nil && steps == nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": err == nil, "steps": steps})
}

// ゲイン設定ハンドラ
func (s *Server) handleSetGain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gain *int `json:"gain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Gain == nil {
		writeError(w, http.StatusBadRequest, "gain を指定してください")
		return
	}
	err := s.service.Do(func(wh *wheel.Wheel) error {
		return wh.Session().SetGain(*req.Gain)
	})
	if err != nil {
		writeWheelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"gain": *req.Gain})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errBadRequest = errors.New("bad request")

func parseDirection(s string) (haptic.Direction, error) {
	switch s {
	case "left", "":
		return haptic.Left, nil
	case "right":
		return haptic.Right, nil
	default:
		return 0, fmt.Errorf("不明な方向 %q", s)
	}
}

// writeWheelError はハンドル操作のエラーをHTTPステータスに対応付けて書き込む
func writeWheelError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotRunning):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, wheel.ErrAngleRange),
		errors.Is(err, haptic.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, wheel.ErrNotCalibrated):
		status = http.StatusConflict
	case errors.Is(err, haptic.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, wheel.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, wheel.ErrEndStop),
		errors.Is(err, wheel.ErrCentreImpossible),
		errors.Is(err, wheel.ErrLockOrder):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err.Error())
}
