package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/char5742/wheel-ffb/internal/config"
	"github.com/char5742/wheel-ffb/internal/telemetry"
)

// Server はAPIサーバーを表す構造体
type Server struct {
	server     *http.Server
	cfg        *config.Config
	configPath string
	mutex      sync.RWMutex
	port       int

	service *WheelService
	hub     *telemetry.Hub
	metrics *telemetry.Metrics
	mqtt    *telemetry.MQTTPublisher
}

// NewServer は新しいAPIサーバーを作成する
// イベントは WebSocket、Prometheus、設定されていれば MQTT に配信される
func NewServer(cfg *config.Config, configPath string, port int) *Server {
	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		port:       port,
		hub:        telemetry.NewHub(),
	}
	pubs := telemetry.Fanout{s.hub}
	if cfg.Telemetry.Metrics {
		s.metrics = telemetry.NewMetrics()
		pubs = append(pubs, s.metrics)
	}
	if cfg.Telemetry.MQTTEnabled {
		p, err := telemetry.NewMQTTPublisher(cfg.Telemetry.MQTTBroker, cfg.Telemetry.MQTTClientID, cfg.Telemetry.MQTTPrefix)
		if err != nil {
			log.Printf("MQTTブローカーへの接続に失敗しました: %v", err)
		} else {
			s.mqtt = p
			pubs = append(pubs, p)
		}
	}
	s.service = NewWheelService(cfg, pubs)
	return s
}

// Handler はAPIのルーターを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	log.Printf("APIサーバーを開始します: http://localhost:%d", s.port)
	return s.server.ListenAndServe()
}

// Stop はAPIサーバーを停止し、ハンドルのセッションを閉じる
func (s *Server) Stop() error {
	if s.service.IsRunning() {
		if err := s.service.Stop(); err != nil {
			log.Printf("サービスの停止に失敗しました: %v", err)
		}
	}
	s.hub.Close()
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.server != nil {
		log.Println("APIサーバーを停止します...")
		return s.server.Shutdown(context.Background())
	}
	return nil
}

// Service はハンドル制御サービスを返す
func (s *Server) Service() *WheelService {
	return s.service
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg
}

// UpdateConfig は設定を更新する
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mutex.Lock()
	s.cfg = cfg
	s.mutex.Unlock()
	s.service.UpdateConfig(cfg)
}

// writeJSON はJSONレスポンスを書き込む
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("JSONエンコードエラー: %v", err)
		}
	}
}

// writeError はエラーレスポンスを書き込む
func writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	writeJSON(w, status, response)
}
