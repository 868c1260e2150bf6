// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// DecodeIMURaw decodes an IMURaw JSON payload as published by the producers.
func DecodeIMURaw(payload []byte) (imu.Sample, error) {
	var raw imu.IMURaw
	if err := json.Unmarshal(payload, &raw); err != nil {
		return imu.Sample{}, fmt.Errorf("decode imu payload: %w", err)
	}
	return raw.Sample(), nil
}

// MQTTSource delivers samples received on an IMU topic.
type MQTTSource struct {
	client  mqtt.Client
	topic   string
	samples chan imu.Sample
	done    chan struct{}
	once    sync.Once
}

// SubscribeMQTT connects to the broker and subscribes to topic. Up to buffer
// samples are queued; when the reader falls behind, newer samples are dropped.
func SubscribeMQTT(broker, clientID, topic string, buffer int) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("capture: connected to MQTT broker at %s", broker)

	s := &MQTTSource{
		client:  client,
		topic:   topic,
		samples: make(chan imu.Sample, buffer),
		done:    make(chan struct{}),
	}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return nil, token.Error()
	}
	log.Printf("capture: subscribed to %s", topic)
	return s, nil
}

func (s *MQTTSource) handle(payload []byte) {
	sample, err := DecodeIMURaw(payload)
	if err != nil {
		log.Warnf("capture: %v", err)
		return
	}
	select {
	case <-s.done:
	case s.samples <- sample:
	default:
		log.Warn("capture: sample buffer full, dropping sample")
	}
}

// Next blocks until a sample arrives or the source is closed (io.EOF).
func (s *MQTTSource) Next() (imu.Sample, error) {
	select {
	case v := <-s.samples:
		return v, nil
	case <-s.done:
		return imu.Sample{}, io.EOF
	}
}

// Close unsubscribes and disconnects. It is safe to call more than once.
func (s *MQTTSource) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.client == nil {
			return
		}
		s.client.Unsubscribe(s.topic).Wait()
		s.client.Disconnect(250)
	})
}
