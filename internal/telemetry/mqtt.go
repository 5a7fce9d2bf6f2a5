package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 2 * time.Second

// MQTTPublisher はイベントを JSON にして <prefix>/<type> へ送る
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

// NewMQTTPublisher はブローカーへ接続する
func NewMQTTPublisher(broker, clientID, prefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT接続が切れました: %v", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTTブローカー %s への接続に失敗しました: %w", broker, token.Error())
	}
	log.Printf("MQTTブローカーに接続しました: %s", broker)
	return &MQTTPublisher{client: client, prefix: prefix}, nil
}

func (p *MQTTPublisher) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("エラー: イベントのエンコード: %v", err)
		return
	}
	token := p.client.Publish(Topic(p.prefix, ev.Type), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Printf("エラー: MQTT送信がタイムアウトしました (%s)", ev.Type)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("エラー: MQTT送信: %v", err)
	}
}

// Close はブローカーから切断する
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// Topic はイベント種別の送信先トピックを返す
func Topic(prefix, eventType string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return eventType
	}
	return prefix + "/" + eventType
}
