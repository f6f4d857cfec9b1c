package request

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// ToJsonReq serializes a payload into a buffer ready to be sent as a JSON
// request body.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}

	bytePayload := bytes.NewBuffer(c)
	return bytePayload, nil
}

// Call sends the request with a JSON content type and decodes the JSON
// response body into response.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{}

	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}

	err = json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return resp, err
	}
	return resp, err
}
