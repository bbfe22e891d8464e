package server

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/pipeline"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/testing/fixtures"
)

func controllerFeature(t *testing.T) (*feature, *ast.Command) {
	t.Helper()
	doc, binding, err := pipeline.New(pipeline.Options{InProcess: true}).
		Compile(context.Background(), fixtures.Feature(fixtures.TemperatureController))
	require.NoError(t, err)
	f, err := newFeature(doc, binding, nil)
	require.NoError(t, err)
	c, ok := doc.Feature.Command("ControlTemperature")
	require.True(t, ok)
	return f, c
}

// untilCancelled blocks until the server cancels the execution
func untilCancelled(ctx context.Context, _ Values, _ *Execution) (Values, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServer_StopRefusesExecutions(t *testing.T) {
	f, c := controllerFeature(t)

	tests := []struct {
		name string
		stop func(*Server)
	}{
		{"graceful stop", (*Server).GracefulStop},
		{"stop", (*Server).Stop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{})
			running, err := s.startExecution(context.Background(), f, c, untilCancelled, nil)
			require.NoError(t, err)

			tt.stop(s)

			snap, _ := running.snapshot()
			assert.Equal(t, StatusFinishedWithError, snap.status, "running executions end before stop returns")

			_, err = s.startExecution(context.Background(), f, c, untilCancelled, nil)
			assert.Equal(t, silaerrors.CommandExecutionNotAccepted, frameworkType(t, err))
		})
	}
}

func TestServer_GracefulStopDuringStarts(t *testing.T) {
	f, c := controllerFeature(t)
	s := New(Options{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []*Execution
	)
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 8; j++ {
				exec, err := s.startExecution(context.Background(), f, c, untilCancelled, nil)
				if err != nil {
					var se *silaerrors.SiLAError
					if assert.ErrorAs(t, err, &se) {
						assert.Equal(t, silaerrors.CommandExecutionNotAccepted, se.FrameworkType)
					}
					continue
				}
				mu.Lock()
				accepted = append(accepted, exec)
				mu.Unlock()
			}
		}()
	}

	close(start)
	s.GracefulStop()
	wg.Wait()

	// executions admitted before the stop were waited for; none after it exist
	mu.Lock()
	defer mu.Unlock()
	for _, exec := range accepted {
		snap, _ := exec.snapshot()
		assert.True(t, snap.status.Finished(), "execution %s still %s", exec.ID(), snap.status)
	}
}
