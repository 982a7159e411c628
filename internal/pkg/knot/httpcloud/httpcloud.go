// Package httpcloud is a reference cloud.Adapter implementation that
// speaks to a KNOT cloud service over HTTP, authenticating with an
// OAuth2 client-credentials grant. It is the gateway's default adapter;
// nothing in the dispatcher depends on it directly.
package httpcloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/knot-edge/gateway/internal/pkg/knot/cloud"
	"github.com/knot-edge/gateway/internal/pkg/knot/trust"
)

var tracer = otel.Tracer("knot-gateway/httpcloud")

// Adapter implements cloud.Adapter against a KNOT cloud service's REST
// API.
type Adapter struct {
	baseURL     string
	credentials *clientcredentials.Config
	httpClient  *http.Client

	oauthCtx    context.Context
	cachedToken *oauth2.Token
	tokenMutex  sync.RWMutex
}

// New builds an Adapter. insecureTLS disables certificate verification,
// for talking to a cloud service behind a self-signed proxy in
// development.
func New(ctx context.Context, baseURL, tokenURL, clientID, clientSecret string, insecureTLS bool) (*Adapter, error) {
	oauthConfig := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	transport := http.DefaultTransport
	if insecureTLS {
		if t, ok := transport.(*http.Transport); ok {
			clone := t.Clone()
			if clone.TLSClientConfig == nil {
				clone.TLSClientConfig = &tls.Config{}
			}
			clone.TLSClientConfig.InsecureSkipVerify = true
			transport = clone
		}
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(transport)}
	oauthCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	token, err := oauthConfig.Token(oauthCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get client credentials from %s: %w", tokenURL, err)
	}

	return &Adapter{
		baseURL:     baseURL,
		credentials: oauthConfig,
		httpClient:  httpClient,
		oauthCtx:    oauthCtx,
		cachedToken: token,
	}, nil
}

func (a *Adapter) token(ctx context.Context) (*oauth2.Token, error) {
	a.tokenMutex.RLock()
	if a.cachedToken != nil && a.cachedToken.Valid() {
		t := a.cachedToken
		a.tokenMutex.RUnlock()
		return t, nil
	}
	a.tokenMutex.RUnlock()

	a.tokenMutex.Lock()
	defer a.tokenMutex.Unlock()

	if a.cachedToken != nil && a.cachedToken.Valid() {
		return a.cachedToken, nil
	}

	t, err := a.credentials.Token(a.oauthCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh client credentials: %w", err)
	}
	a.cachedToken = t
	return t, nil
}

func (a *Adapter) invalidateToken() {
	a.tokenMutex.Lock()
	defer a.tokenMutex.Unlock()
	a.cachedToken = nil
}

// do issues req, retrying exactly once with a refreshed token on a 401.
func (a *Adapter) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drainAndClose(resp)

	a.invalidateToken()
	token, err = a.token(ctx)
	if err != nil {
		return nil, err
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return a.httpClient.Do(req)
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

type mkNodeRequest struct {
	DeviceName string `json:"deviceName"`
	DeviceID   uint64 `json:"deviceId"`
}

type mkNodeResponse struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

func (a *Adapter) MkNode(ctx context.Context, deviceName string, deviceID uint64) (string, string, cloud.Result) {
	var err error
	ctx, span := tracer.Start(ctx, "mk-node")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(mkNodeRequest{DeviceName: deviceName, DeviceID: deviceID})
	if err != nil {
		return "", "", cloud.ResultErrorUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/nodes", bytes.NewReader(body))
	if err != nil {
		return "", "", cloud.ResultErrorUnknown
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.do(ctx, req)
	if err != nil {
		return "", "", cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusBadRequest {
		return "", "", cloud.ResultRegisterInvalidDeviceName
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("mk-node: unexpected status %d", resp.StatusCode)
		return "", "", cloud.ResultErrorUnknown
	}

	var out mkNodeResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", cloud.ResultErrorUnknown
	}

	return out.UUID, out.Token, cloud.ResultSuccess
}

func (a *Adapter) RmNode(ctx context.Context, uuid, token string) cloud.Result {
	var err error
	ctx, span := tracer.Start(ctx, "rm-node")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+"/nodes/"+uuid, nil)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusForbidden {
		return cloud.ResultCredentialUnauthorized
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		err = fmt.Errorf("rm-node: unexpected status %d", resp.StatusCode)
		return cloud.ResultErrorUnknown
	}
	return cloud.ResultSuccess
}

type signInResponse struct {
	Schema []trust.SchemaEntry `json:"schema"`
	Config []trust.ConfigEntry `json:"config"`
}

func (a *Adapter) SignIn(ctx context.Context, uuid, token string) ([]trust.SchemaEntry, []trust.ConfigEntry, cloud.Result) {
	var err error
	ctx, span := tracer.Start(ctx, "sign-in")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/nodes/"+uuid+"/signin", nil)
	if err != nil {
		return nil, nil, cloud.ResultErrorUnknown
	}
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return nil, nil, cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusForbidden {
		return nil, nil, cloud.ResultCredentialUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("sign-in: unexpected status %d", resp.StatusCode)
		return nil, nil, cloud.ResultErrorUnknown
	}

	var out signInResponse
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, cloud.ResultErrorUnknown
	}

	return out.Schema, out.Config, cloud.ResultSuccess
}

func (a *Adapter) SubmitSchema(ctx context.Context, uuid, token string, schema []trust.SchemaEntry) cloud.Result {
	var err error
	ctx, span := tracer.Start(ctx, "submit-schema")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(schema)
	if err != nil {
		return cloud.ResultErrorUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+"/nodes/"+uuid+"/schema", bytes.NewReader(body))
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return cloud.ResultSchemaEmpty
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("submit-schema: unexpected status %d", resp.StatusCode)
		return cloud.ResultErrorUnknown
	}
	return cloud.ResultSuccess
}

type dataRequest struct {
	SensorID  uint8  `json:"sensorId"`
	ValueType uint8  `json:"valueType"`
	Payload   []byte `json:"payload"`
}

func (a *Adapter) PushData(ctx context.Context, uuid, token string, sensorID uint8, valueType uint8, payload []byte) cloud.Result {
	var err error
	ctx, span := tracer.Start(ctx, "push-data")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(dataRequest{SensorID: sensorID, ValueType: valueType, Payload: payload})
	if err != nil {
		return cloud.ResultErrorUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/nodes/"+uuid+"/data", bytes.NewReader(body))
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusBadRequest {
		return cloud.ResultInvalidData
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		err = fmt.Errorf("push-data: unexpected status %d", resp.StatusCode)
		return cloud.ResultErrorUnknown
	}
	return cloud.ResultSuccess
}

func (a *Adapter) PullData(ctx context.Context, uuid, token string, sensorID uint8) cloud.Result {
	var err error
	ctx, span := tracer.Start(ctx, "pull-data")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	url := fmt.Sprintf("%s/nodes/%s/data/%d", a.baseURL, uuid, sensorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return cloud.ResultNoData
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("pull-data: unexpected status %d", resp.StatusCode)
		return cloud.ResultErrorUnknown
	}
	return cloud.ResultSuccess
}

func (a *Adapter) AckSetData(ctx context.Context, uuid, token string, sensorID uint8) cloud.Result {
	var err error
	ctx, span := tracer.Start(ctx, "ack-set-data")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	url := fmt.Sprintf("%s/nodes/%s/data/%d/ack", a.baseURL, uuid, sensorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	req.Header.Set("X-Node-Token", token)

	resp, err := a.do(ctx, req)
	if err != nil {
		return cloud.ResultErrorUnknown
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		err = fmt.Errorf("ack-set-data: unexpected status %d", resp.StatusCode)
		return cloud.ResultErrorUnknown
	}
	return cloud.ResultSuccess
}

var _ cloud.Adapter = &Adapter{}
