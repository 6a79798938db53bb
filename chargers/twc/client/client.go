package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"knx-ev-bridge/chargers/common"
)

func NewChargerClient(addr string) common.Client {
	return &httpClient{
		addr: addr,
	}
}

type httpClient struct {
	addr string
}

type chargeNowRequest struct {
	ChargeNowRate     int `json:"chargeNowRate"`
	ChargeNowDuration int `json:"chargeNowDuration"`
}

func (h *httpClient) doPost(api string, body interface{}) error {
	uri := fmt.Sprintf("http://%s/api/%s", h.addr, api)
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errors.Wrap(err, "encoding request")
		}
	}
	resp, err := http.Post(uri, "application/json", &buf)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request to %s returned %s", api, resp.Status)
	}
	return nil
}

func (h *httpClient) StartChargeNow(rateAmps uint8, durationSeconds uint16) error {
	return h.doPost("chargeNow", chargeNowRequest{
		ChargeNowRate:     int(rateAmps),
		ChargeNowDuration: int(durationSeconds),
	})
}

func (h *httpClient) StopCharge() error {
	return h.doPost("cancelChargeNow", nil)
}
