/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package main is a prefix service that talks to an MQTT broker.
//
// Operations (see the service package) arrive as JSON on the request
// topic; replies go out on the response topic, or on the topic a
// message names in its "replyTo" property.
//
// The command line args follow those for mosquitto_sub.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/Comcast/packmule/service"
	"github.com/Comcast/packmule/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {

	var (
		// Follow mosquitto_sub command line args.

		broker    = flag.String("h", "tcp://localhost", "Broker hostname")
		clientId  = flag.String("i", "", "Client id")
		port      = flag.Int("p", 1883, "Broker port")
		keepAlive = flag.Int("k", 10, "Keep-alive in seconds")
		userName  = flag.String("u", "", "Username")
		password  = flag.String("P", "", "Password")
		reconnect = flag.Bool("reconnect", false, "Automatically attempt to reconnect")
		clean     = flag.Bool("c", true, "Clean session")
		quiesce   = flag.Int("quiesce", 100, "Disconnection quiescence (in milliseconds)")

		certFilename = flag.String("cert", "", "Optional cert filename")
		keyFilename  = flag.String("key", "", "Optional key filename")
		insecure     = flag.Bool("insecure", false, "Skip broker cert checking")
		caFilename   = flag.String("cafile", "", "Optional CA cert filename")

		reqTopic = flag.String("t", "packmule/requests", "request topic")
		resTopic = flag.String("r", "packmule/replies", "default reply topic")
		qos      = flag.Int("qos", 0, "QoS for subscription and replies")

		dbFile  = flag.String("db", "", "optional BoltDB file for persistence")
		verbose = flag.Bool("v", false, "verbosity")
	)

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := service.NewService()
	s.Verbose = *verbose

	if *dbFile != "" {
		storage, err := store.NewStorage(*dbFile)
		if err != nil {
			log.Fatal(err)
		}
		if err = storage.Open(ctx); err != nil {
			log.Fatal(err)
		}
		defer storage.Close(ctx)
		s.Storage = storage
	}

	mqtt.ERROR = log.New(os.Stderr, "mqtt.error", 0)

	opts := mqtt.NewClientOptions()

	*broker = fmt.Sprintf("%s:%d", *broker, *port)
	opts.AddBroker(*broker)
	opts.SetClientID(*clientId)
	opts.SetKeepAlive(time.Second * time.Duration(*keepAlive))

	opts.Username = *userName
	opts.Password = *password
	opts.AutoReconnect = *reconnect
	opts.CleanSession = *clean

	var rootCAs *x509.CertPool
	if *caFilename != "" {
		if rootCAs, _ = x509.SystemCertPool(); rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := ioutil.ReadFile(*caFilename)
		if err != nil {
			log.Fatalf("couldn't read '%s': %s", *caFilename, err)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			log.Println("No certs appended, using system certs only")
		}
	}

	var certs []tls.Certificate
	if *keyFilename != "" {
		cert, err := tls.LoadX509KeyPair(*certFilename, *keyFilename)
		if err != nil {
			log.Fatal(err)
		}
		certs = []tls.Certificate{cert}
	}

	tlsConf := &tls.Config{
		InsecureSkipVerify: *insecure,
	}

	if rootCAs != nil {
		tlsConf.RootCAs = rootCAs
	}

	if certs != nil {
		tlsConf.Certificates = certs
	}

	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost")
	}

	handler := func(client mqtt.Client, msg mqtt.Message) {
		if *verbose {
			log.Printf("incoming: %s %s", msg.Topic(), msg.Payload())
		}

		var op service.Op
		topic := *resTopic
		if err := json.Unmarshal(msg.Payload(), &op); err != nil {
			op.Err = "can't parse: " + err.Error()
		} else {
			// A message can direct its reply.
			var envelope struct {
				ReplyTo string `json:"replyTo"`
			}
			if json.Unmarshal(msg.Payload(), &envelope) == nil && envelope.ReplyTo != "" {
				topic = envelope.ReplyTo
			}
			if err = op.Do(ctx, s); err != nil {
				log.Printf("op error: %v", err)
				// Conveyed via op.Err.
			}
		}

		js, err := json.Marshal(&op)
		if err != nil {
			log.Printf("Failed to marshal %#v", op)
			return
		}
		token := client.Publish(topic, byte(*qos), false, js)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Publish error: %s", token.Error())
		}
	}

	client := mqtt.NewClient(opts)

	log.Printf("Attempting to connect to broker")
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal(token.Error())
	}
	log.Printf("Connected to broker")

	log.Printf("Subscribing to %s (%d)", *reqTopic, *qos)
	if t := client.Subscribe(*reqTopic, byte(*qos), handler); t.Wait() && t.Error() != nil {
		log.Fatal(t.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	log.Printf("Disconnecting")
	client.Disconnect(uint(*quiesce))
}
