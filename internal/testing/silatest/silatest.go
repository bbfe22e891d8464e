// Package silatest starts SiLA servers over in-memory connections for tests
package silatest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/silaforge/silac/internal/compiler/fdl"
	"github.com/silaforge/silac/internal/compiler/pipeline"
	"github.com/silaforge/silac/internal/compiler/protoc"
	"github.com/silaforge/silac/internal/sila/server"
	"github.com/silaforge/silac/internal/testing/fixtures"
)

// Compile parses the named fixture and builds its binding in process
func Compile(t *testing.T, name string) (*fdl.Document, *protoc.Binding) {
	t.Helper()
	return CompileText(t, fixtures.Feature(name))
}

// CompileText parses a feature definition and builds its binding in process
func CompileText(t *testing.T, text []byte) (*fdl.Document, *protoc.Binding) {
	t.Helper()
	doc, binding, err := pipeline.New(pipeline.Options{InProcess: true}).Compile(context.Background(), text)
	require.NoError(t, err)
	return doc, binding
}

// Serve runs srv on an in-memory listener and returns a connection to it.
// Both are closed when the test ends.
func Serve(t *testing.T, srv *server.Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}
	conn, err := grpc.DialContext(ctx, "bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		_ = lis.Close()
		<-serveErr
	})
	return conn
}
