package bus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/sirupsen/logrus"
)

// TxRequest is the body posted to a bus server for one transaction.
type TxRequest struct {
	Request     []byte
	ResponseLen int
}

// TxResponse carries the bytes read, or the error the server's bus returned.
type TxResponse struct {
	Response []byte
	Error    string
}

// Remote forwards transactions to a bus server over HTTP.
// Each Tx is a full open/transact/close cycle on the server.
type Remote struct {
	URL      string
	Password string
	Client   *http.Client
}

func (t *Remote) String() string {
	return "remote:" + t.URL
}

func (t *Remote) Open() (Conn, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &remoteConn{t: t, client: client}, nil
}

type remoteConn struct {
	t      *Remote
	client *http.Client
	closed bool
}

func (c *remoteConn) Tx(w []byte, n int) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	body, err := json.Marshal(&TxRequest{Request: w, ResponseLen: n})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.t.Password != "" {
		req.SetBasicAuth("focuser", c.t.Password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(data))
	}
	var txResp TxResponse
	if err := json.Unmarshal(data, &txResp); err != nil {
		return nil, err
	}
	if txResp.Error != "" {
		return txResp.Response, errors.New(txResp.Error)
	}
	return txResp.Response, nil
}

func (c *remoteConn) Close() error {
	c.closed = true
	return nil
}

// Handler serves a local Transport to Remote clients.
type Handler struct {
	Transport Transport
	Password  string
	Log       *logrus.Entry
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Password != "" {
		_, pass, ok := r.BasicAuth()
		if !ok || pass != h.Password {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
	}
	err := func() error {
		data, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return err
		}
		var req TxRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		resp, err := h.tx(req)
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&TxResponse{Response: resp, Error: errString})
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		if h.Log != nil {
			h.Log.WithError(err).Warn("bus request failed")
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) tx(req TxRequest) ([]byte, error) {
	conn, err := h.Transport.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h.Transport, err)
	}
	defer conn.Close()
	return conn.Tx(req.Request, req.ResponseLen)
}
