// Command focuser_logger copies focuserd status updates into InfluxDB.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/sirupsen/logrus"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(getenv("INFLUX_ORG", "observatory"), getenv("INFLUX_BUCKET", "focuser.raw"))
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			logrus.WithError(err).Warn("write error")
		}
	}()
	url := getenv("FOCUSER_ADDRESS", "ws://localhost:8080/api/ws")
	for {
		if err := logData(url, writeApi); err != nil {
			logrus.WithError(err).Warn("status stream ended")
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus turns nested JSON into dotted field names.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		if prefix != "" {
			fields[prefix[1:]] = status
		}
	}
}

func logData(url string, writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logrus.WithField("url", url).Info("connected")
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		p := influxdb2.NewPoint("focuser.status", nil, fields, time.Now())
		// write asynchronously
		writeApi.WritePoint(p)
	}
}
