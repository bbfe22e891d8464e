package server_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcmd "google.golang.org/grpc/metadata"

	"github.com/silaforge/silac/internal/metric"
	"github.com/silaforge/silac/internal/sila/client"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
	"github.com/silaforge/silac/internal/sila/server"
	"github.com/silaforge/silac/internal/testing/fixtures"
	"github.com/silaforge/silac/internal/testing/silatest"
)

const (
	greeterID     = "org.silastandard/examples/Greeter/v1"
	controllerID  = "com.example.lab/heating/TemperatureController/v2"
	accessTokenID = controllerID + "/Metadata/AccessToken"
)

func siLAError(t *testing.T, err error) *silaerrors.SiLAError {
	t.Helper()
	require.Error(t, err)
	var se *silaerrors.SiLAError
	require.True(t, errors.As(err, &se), "expected a SiLA error, got %v", err)
	return se
}

func greeterClient(t *testing.T, opts server.Options, impl *server.FeatureImplementation) *client.Client {
	t.Helper()
	doc, binding := silatest.Compile(t, fixtures.Greeter)
	srv := server.New(opts)
	require.NoError(t, srv.Register(doc, binding, impl))
	c, err := client.New(silatest.Serve(t, srv), doc, binding)
	require.NoError(t, err)
	return c
}

func sayHello(_ context.Context, params server.Values) (server.Values, error) {
	return server.Values{"Greeting": "Hello, " + params["Name"].(string) + "!"}, nil
}

func TestServer_UnobservableCommand(t *testing.T) {
	c := greeterClient(t, server.Options{}, &server.FeatureImplementation{
		Commands: map[string]server.CommandHandler{"SayHello": sayHello},
		Properties: map[string]server.PropertyHandler{
			"StartYear": func(context.Context) (interface{}, error) { return 2024, nil },
		},
	})
	ctx := context.Background()

	resp, err := c.Call(ctx, "SayHello", client.Values{"Name": "World"})
	require.NoError(t, err)
	assert.Equal(t, client.Values{"Greeting": "Hello, World!"}, resp)

	year, err := c.Get(ctx, "StartYear")
	require.NoError(t, err)
	assert.Equal(t, int64(2024), year)
}

func TestServer_MissingParameter(t *testing.T) {
	c := greeterClient(t, server.Options{}, &server.FeatureImplementation{
		Commands: map[string]server.CommandHandler{"SayHello": sayHello},
	})

	_, err := c.Call(context.Background(), "SayHello", client.Values{})
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.KindValidation, se.Kind)
	assert.Equal(t, greeterID+"/Command/SayHello/Parameter/Name", se.Parameter)
}

func TestServer_HandlerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler server.CommandHandler
		message string
	}{
		{
			name: "plain error",
			handler: func(context.Context, server.Values) (server.Values, error) {
				return nil, fmt.Errorf("printer jammed")
			},
			message: "printer jammed",
		},
		{
			name: "panic",
			handler: func(context.Context, server.Values) (server.Values, error) {
				panic("boom")
			},
			message: "panic: boom",
		},
		{
			name: "missing response",
			handler: func(context.Context, server.Values) (server.Values, error) {
				return server.Values{}, nil
			},
			message: "Greeting",
		},
		{
			name: "undeclared defined error",
			handler: func(context.Context, server.Values) (server.Values, error) {
				return nil, silaerrors.NewDefinedExecutionError(
					identifier.MustParse(greeterID+"/DefinedExecutionError/UnknownName"), "who?")
			},
			message: "undeclared error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := greeterClient(t, server.Options{}, &server.FeatureImplementation{
				Commands: map[string]server.CommandHandler{"SayHello": tt.handler},
			})
			_, err := c.Call(context.Background(), "SayHello", client.Values{"Name": "World"})
			se := siLAError(t, err)
			assert.Equal(t, silaerrors.KindUndefinedExecution, se.Kind)
			assert.Contains(t, se.Message, tt.message)
		})
	}
}

func TestServer_NotImplemented(t *testing.T) {
	c := greeterClient(t, server.Options{}, nil)

	_, err := c.Get(context.Background(), "StartYear")
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.KindUndefinedExecution, se.Kind)
	assert.Contains(t, se.Message, "not implemented")
}

func TestServer_RejectMetadata(t *testing.T) {
	c := greeterClient(t, server.Options{}, &server.FeatureImplementation{
		Commands:       map[string]server.CommandHandler{"SayHello": sayHello},
		RejectMetadata: true,
	})

	ctx := grpcmd.AppendToOutgoingContext(context.Background(), "sila-org.example-lock-v1-metadata-lockid-bin", "x")
	_, err := c.Call(ctx, "SayHello", client.Values{"Name": "World"})
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.KindFramework, se.Kind)
	assert.Equal(t, silaerrors.NoMetadataAllowed, se.FrameworkType)

	_, err = c.Call(context.Background(), "SayHello", client.Values{"Name": "World"})
	assert.NoError(t, err)
}

func TestServer_Metrics(t *testing.T) {
	reg := metric.NewRegistry()
	c := greeterClient(t, server.Options{Metrics: reg.Metrics}, &server.FeatureImplementation{
		Commands: map[string]server.CommandHandler{"SayHello": sayHello},
	})
	ctx := context.Background()

	_, err := c.Call(ctx, "SayHello", client.Values{"Name": "World"})
	require.NoError(t, err)
	_, err = c.Call(ctx, "SayHello", client.Values{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Metrics.Calls.WithLabelValues(greeterID, "SayHello", server.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Metrics.Calls.WithLabelValues(greeterID, "SayHello", "validation")))
}

func TestServer_Register(t *testing.T) {
	doc, binding := silatest.Compile(t, fixtures.Greeter)

	tests := []struct {
		name    string
		impl    *server.FeatureImplementation
		wantErr string
	}{
		{
			name:    "unknown command",
			impl:    &server.FeatureImplementation{Commands: map[string]server.CommandHandler{"SayGoodbye": sayHello}},
			wantErr: "no unobservable command SayGoodbye",
		},
		{
			name: "observable handler for unobservable command",
			impl: &server.FeatureImplementation{ObservableCommands: map[string]server.ObservableCommandHandler{
				"SayHello": func(context.Context, server.Values, *server.Execution) (server.Values, error) { return nil, nil },
			}},
			wantErr: "no observable command SayHello",
		},
		{
			name: "unknown metadata",
			impl: &server.FeatureImplementation{AffectedByMetadata: map[string][]string{
				"Lock": {greeterID},
			}},
			wantErr: "no metadata Lock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := server.New(server.Options{}).Register(doc, binding, tt.impl)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		srv := server.New(server.Options{})
		require.NoError(t, srv.Register(doc, binding, nil))
		err := srv.Register(doc, binding, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("lookup", func(t *testing.T) {
		srv := server.New(server.Options{})
		require.NoError(t, srv.Register(doc, binding, nil))
		found, ok := srv.Feature("ORG.SILASTANDARD/examples/greeter/V1")
		require.True(t, ok)
		assert.Same(t, doc, found)
		assert.Len(t, srv.Features(), 1)

		_, ok = srv.Feature(controllerID)
		assert.False(t, ok)
	})
}

// controller serves the temperature controller fixture. release lets a
// running ControlTemperature execution finish.
type controller struct {
	client  *client.Client
	release chan struct{}
}

func newController(t *testing.T, opts server.Options) *controller {
	t.Helper()
	doc, binding := silatest.Compile(t, fixtures.TemperatureController)
	tc := &controller{release: make(chan struct{})}
	notReachable := identifier.MustParse(controllerID + "/DefinedExecutionError/TemperatureNotReachable")
	invalidToken := identifier.MustParse(controllerID + "/DefinedExecutionError/InvalidAccessToken")

	impl := &server.FeatureImplementation{
		Commands: map[string]server.CommandHandler{
			"SetLabel": func(ctx context.Context, params server.Values) (server.Values, error) {
				token, _ := server.MetadataValue(ctx, identifier.MustParse(accessTokenID))
				if token != "secret" {
					return nil, silaerrors.NewDefinedExecutionError(invalidToken, "access denied")
				}
				return server.Values{}, nil
			},
		},
		ObservableCommands: map[string]server.ObservableCommandHandler{
			"ControlTemperature": func(ctx context.Context, params server.Values, exec *server.Execution) (server.Values, error) {
				target := params["TargetTemperature"].(float64)
				if target > 400 {
					return nil, silaerrors.NewDefinedExecutionError(notReachable, "too hot")
				}
				for i := 0; ; i++ {
					exec.SetProgress(0.5)
					if err := exec.SendIntermediate(server.Values{"CurrentTemperature": 290.0 + float64(i)}); err != nil {
						return nil, err
					}
					select {
					case <-tc.release:
						return server.Values{"FinalReading": map[string]interface{}{
							"Temperature": target,
							"MeasuredAt":  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
						}}, nil
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(5 * time.Millisecond):
					}
				}
			},
		},
		Properties: map[string]server.PropertyHandler{
			"DeviceInfo": func(context.Context) (interface{}, error) {
				return map[string]interface{}{"Model": "TC-1", "Serial": "SN000001"}, nil
			},
		},
		ObservableProperties: map[string]server.SubscriptionHandler{
			"CurrentTemperature": func(ctx context.Context, send func(interface{}) error) error {
				for _, v := range []float64{290, 291, 292} {
					if err := send(v); err != nil {
						return err
					}
				}
				return nil
			},
		},
		AffectedByMetadata: map[string][]string{
			"AccessToken": {controllerID + "/Command/SetLabel"},
		},
	}

	srv := server.New(opts)
	require.NoError(t, srv.Register(doc, binding, impl))
	c, err := client.New(silatest.Serve(t, srv), doc, binding)
	require.NoError(t, err)
	tc.client = c
	return tc
}

var errStop = errors.New("stop")

func TestServer_ObservableCommand(t *testing.T) {
	tc := newController(t, server.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := tc.client.Start(ctx, "ControlTemperature", client.Values{"TargetTemperature": 310.0})
	require.NoError(t, err)
	_, err = uuid.Parse(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, server.DefaultExecutionLifetime, exec.Lifetime)

	_, err = exec.Result(ctx)
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.CommandExecutionNotFinished, se.FrameworkType)

	var first client.Values
	err = exec.Intermediate(ctx, func(v client.Values) error {
		first = v
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.GreaterOrEqual(t, first["CurrentTemperature"].(float64), 290.0)

	close(tc.release)

	var infos []client.ExecutionInfo
	require.NoError(t, exec.Info(ctx, func(info client.ExecutionInfo) error {
		infos = append(infos, info)
		return nil
	}))
	require.NotEmpty(t, infos)
	last := infos[len(infos)-1]
	assert.Equal(t, server.StatusFinishedSuccessfully, last.Status)
	assert.True(t, last.HasProgress)
	assert.Equal(t, 1.0, last.Progress)

	result, err := exec.Result(ctx)
	require.NoError(t, err)
	reading := result["FinalReading"].(map[string]interface{})
	assert.Equal(t, 310.0, reading["Temperature"])
	assert.True(t, reading["MeasuredAt"].(time.Time).Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	bogus := *exec
	bogus.ID = uuid.NewString()
	_, err = bogus.Result(ctx)
	se = siLAError(t, err)
	assert.Equal(t, silaerrors.InvalidCommandExecutionUUID, se.FrameworkType)
}

func TestServer_ObservableCommandError(t *testing.T) {
	tc := newController(t, server.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := tc.client.Start(ctx, "ControlTemperature", client.Values{"TargetTemperature": 450.0})
	require.NoError(t, err)

	_, err = exec.Wait(ctx)
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.KindDefinedExecution, se.Kind)
	assert.Equal(t, controllerID+"/DefinedExecutionError/TemperatureNotReachable", se.ErrorIdentifier)

	var status server.ExecutionStatus
	require.NoError(t, exec.Info(ctx, func(info client.ExecutionInfo) error {
		status = info.Status
		return nil
	}))
	assert.Equal(t, server.StatusFinishedWithError, status)
}

func TestServer_ObservableCommandValidation(t *testing.T) {
	tc := newController(t, server.Options{})

	_, err := tc.client.Start(context.Background(), "ControlTemperature", client.Values{"TargetTemperature": 600.0})
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.KindValidation, se.Kind)
	assert.Equal(t, controllerID+"/Command/ControlTemperature/Parameter/TargetTemperature", se.Parameter)
	assert.Contains(t, se.Message, "at most")
}

func TestServer_ExecutionExpires(t *testing.T) {
	tc := newController(t, server.Options{ExecutionLifetime: 100 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exec, err := tc.client.Start(ctx, "ControlTemperature", client.Values{"TargetTemperature": 450.0})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, exec.Lifetime)

	require.Eventually(t, func() bool {
		_, err := exec.Result(ctx)
		var se *silaerrors.SiLAError
		return errors.As(err, &se) && se.FrameworkType == silaerrors.InvalidCommandExecutionUUID
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServer_Metadata(t *testing.T) {
	tc := newController(t, server.Options{})
	ctx := context.Background()
	params := client.Values{"Label": "Block A", "Tags": []string{"lab"}}

	_, err := tc.client.Call(ctx, "SetLabel", params)
	se := siLAError(t, err)
	assert.Equal(t, silaerrors.InvalidMetadata, se.FrameworkType)

	withToken, err := tc.client.WithMetadata(ctx, "AccessToken", "secret")
	require.NoError(t, err)
	_, err = tc.client.Call(withToken, "SetLabel", params)
	assert.NoError(t, err)

	wrongToken, err := tc.client.WithMetadata(ctx, "AccessToken", "guess")
	require.NoError(t, err)
	_, err = tc.client.Call(wrongToken, "SetLabel", params)
	se = siLAError(t, err)
	assert.Equal(t, silaerrors.KindDefinedExecution, se.Kind)
	assert.Equal(t, controllerID+"/DefinedExecutionError/InvalidAccessToken", se.ErrorIdentifier)

	garbled := grpcmd.AppendToOutgoingContext(ctx, identifier.MustParse(accessTokenID).MetadataHeader(), "\xff\xff")
	_, err = tc.client.Call(garbled, "SetLabel", params)
	se = siLAError(t, err)
	assert.Equal(t, silaerrors.InvalidMetadata, se.FrameworkType)

	affected, err := tc.client.AffectedByMetadata(ctx, "AccessToken")
	require.NoError(t, err)
	assert.Equal(t, []string{controllerID + "/Command/SetLabel"}, affected)

	// properties are not affected by the token
	_, err = tc.client.Get(ctx, "DeviceInfo")
	assert.NoError(t, err)
}

func TestServer_ParameterConstraints(t *testing.T) {
	tc := newController(t, server.Options{})
	ctx, err := tc.client.WithMetadata(context.Background(), "AccessToken", "secret")
	require.NoError(t, err)

	tests := []struct {
		name      string
		params    client.Values
		parameter string
	}{
		{"pattern", client.Values{"Label": "Block_A", "Tags": []string{}}, "Label"},
		{"length", client.Values{"Label": "A very long label indeed", "Tags": []string{}}, "Label"},
		{"element count", client.Values{"Label": "Block", "Tags": []string{"a", "b", "c", "d"}}, "Tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.client.Call(ctx, "SetLabel", tt.params)
			se := siLAError(t, err)
			assert.Equal(t, silaerrors.KindValidation, se.Kind)
			assert.Equal(t, controllerID+"/Command/SetLabel/Parameter/"+tt.parameter, se.Parameter)
		})
	}
}

func TestServer_Properties(t *testing.T) {
	tc := newController(t, server.Options{})
	ctx := context.Background()

	info, err := tc.client.Get(ctx, "DeviceInfo")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"Model": "TC-1", "Serial": "SN000001"}, info)

	var values []interface{}
	require.NoError(t, tc.client.Subscribe(ctx, "CurrentTemperature", func(v interface{}) error {
		values = append(values, v)
		return nil
	}))
	assert.Equal(t, []interface{}{290.0, 291.0, 292.0}, values)
}
