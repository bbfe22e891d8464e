package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/silaforge/silac/internal/compiler/ast"
	"github.com/silaforge/silac/internal/compiler/codegen"
	silaerrors "github.com/silaforge/silac/internal/sila/errors"
	"github.com/silaforge/silac/internal/sila/identifier"
)

type unaryFunc func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error)

type streamFunc func(ctx context.Context, req *dynamicpb.Message, send func(proto.Message) error) error

// serviceDesc builds the gRPC service of a feature from its binding. Every
// method decodes its request into a dynamic message of the input type.
func (s *Server) serviceDesc(f *feature) (*grpc.ServiceDesc, error) {
	svc, ok := f.binding.Service()
	if !ok {
		return nil, fmt.Errorf("binding of %s declares no service", f.id)
	}
	sd := &grpc.ServiceDesc{
		ServiceName: string(svc.FullName()),
		HandlerType: (*interface{})(nil),
		Metadata:    f.binding.File().Path(),
	}
	b := &descBuilder{sd: sd, feature: f}

	def := f.doc.Feature
	for _, c := range def.Commands {
		if !c.Observable {
			b.unary(c.Identifier, s.command(f, c))
			continue
		}
		b.unary(c.Identifier, s.observableCommand(f, c))
		b.stream(codegen.InfoMethod(c.Identifier), s.executionInfo(f, c))
		if len(c.IntermediateResponses) > 0 {
			b.stream(codegen.IntermediateMethod(c.Identifier), s.intermediateResponses(f, c))
		}
		b.unary(codegen.ResultMethod(c.Identifier), s.executionResult(f, c))
	}
	for _, p := range def.Properties {
		if p.Observable {
			b.stream(codegen.SubscribeMethod(p.Identifier), s.subscribeProperty(f, p))
		} else {
			b.unary(codegen.GetMethod(p.Identifier), s.getProperty(f, p))
		}
	}
	for _, m := range def.Metadata {
		b.unary(codegen.AffectedByMetadataMethod(m.Identifier), s.affectedCalls(f, m))
	}
	if b.err != nil {
		return nil, b.err
	}
	return sd, nil
}

// descBuilder appends methods to a service description, keeping the first
// error
type descBuilder struct {
	sd      *grpc.ServiceDesc
	feature *feature
	err     error
}

func (b *descBuilder) unary(name string, fn unaryFunc) {
	if b.err != nil {
		return
	}
	md, err := b.feature.binding.Method(name)
	if err != nil {
		b.err = err
		return
	}
	fullMethod := fmt.Sprintf("/%s/%s", b.sd.ServiceName, name)
	b.sd.Methods = append(b.sd.Methods, grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := dynamicpb.NewMessage(md.Input())
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(ctx, req.(*dynamicpb.Message))
			})
		},
	})
}

func (b *descBuilder) stream(name string, fn streamFunc) {
	if b.err != nil {
		return
	}
	md, err := b.feature.binding.Method(name)
	if err != nil {
		b.err = err
		return
	}
	b.sd.Streams = append(b.sd.Streams, grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			in := dynamicpb.NewMessage(md.Input())
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(stream.Context(), in, func(m proto.Message) error {
				return stream.SendMsg(m)
			})
		},
	})
}

func (s *Server) command(f *feature, c *ast.Command) unaryFunc {
	handler := f.impl.Commands[c.Identifier]
	target := f.commandID(c)
	return func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
		var out proto.Message
		err := s.newCall(f, c.Identifier, target).run(ctx, func(ctx context.Context) error {
			params, err := f.parameters(c, req)
			if err != nil {
				return err
			}
			if handler == nil {
				return notImplemented(target)
			}
			responses, err := handler(ctx, params)
			if err != nil {
				return err
			}
			out, err = f.message(codegen.ResponsesMessage(c.Identifier), c.Responses, responses)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (s *Server) observableCommand(f *feature, c *ast.Command) unaryFunc {
	handler := f.impl.ObservableCommands[c.Identifier]
	target := f.commandID(c)
	return func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
		var out proto.Message
		err := s.newCall(f, c.Identifier, target).run(ctx, func(ctx context.Context) error {
			params, err := f.parameters(c, req)
			if err != nil {
				return err
			}
			if handler == nil {
				return notImplemented(target)
			}
			exec, err := s.startExecution(ctx, f, c, handler, params)
			if err != nil {
				return err
			}
			out, err = commandConfirmation(f.binding, exec.ID(), s.executions.lifetime)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// startExecution runs handler in its own goroutine. The execution outlives
// the call that started it and is cancelled only when the server stops.
func (s *Server) startExecution(ctx context.Context, f *feature, c *ast.Command, handler ObservableCommandHandler, params Values) (*Execution, error) {
	if !s.admit() {
		return nil, silaerrors.NewFrameworkError(silaerrors.CommandExecutionNotAccepted, "server is shutting down")
	}
	target := f.commandID(c)
	exec := s.executions.create(target)
	if len(c.IntermediateResponses) > 0 {
		name := codegen.IntermediateResponsesMessage(c.Identifier)
		exec.encode = func(values Values) (proto.Message, error) {
			return f.message(name, c.IntermediateResponses, values)
		}
	}

	featureID := f.id.String()
	logger := s.logger.With(zap.String("command", target.String()), zap.Stringer("execution", exec.ID()))
	execCtx := withMetadata(s.ctx, metadataFrom(ctx))

	s.metrics.ExecutionStarted(featureID, c.Identifier)
	go func() {
		defer s.wg.Done()
		defer s.metrics.ExecutionFinished(featureID, c.Identifier)

		exec.start()
		responses, err := runExecution(execCtx, handler, params, exec)
		var result proto.Message
		if err == nil {
			result, err = f.message(codegen.ResponsesMessage(c.Identifier), c.Responses, responses)
		}
		if err != nil {
			err = silaerrors.Map(err, f)
			logger.Info("execution failed", zap.String("kind", outcomeOf(err)), zap.Error(err))
		} else {
			logger.Debug("execution finished")
		}
		exec.finish(result, err)
		s.executions.expire(exec)
	}()
	return exec, nil
}

func runExecution(ctx context.Context, handler ObservableCommandHandler, params Values, exec *Execution) (responses Values, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = silaerrors.NewUndefinedExecutionError(fmt.Sprintf("panic: %v", r))
		}
	}()
	return handler(ctx, params, exec)
}

func (s *Server) executionInfo(f *feature, c *ast.Command) streamFunc {
	target := f.commandID(c)
	return func(ctx context.Context, req *dynamicpb.Message, send func(proto.Message) error) error {
		return s.newCall(f, codegen.InfoMethod(c.Identifier), identifier.FullyQualifiedIdentifier{}).run(ctx, func(ctx context.Context) error {
			exec, err := s.executions.lookup(target, executionID(req))
			if err != nil {
				return err
			}
			for {
				snap, changed := exec.snapshot()
				msg, err := executionInfo(f.binding, snap)
				if err != nil {
					return err
				}
				if err := send(msg); err != nil {
					return err
				}
				if snap.status.Finished() {
					return nil
				}
				select {
				case <-changed:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}
}

func (s *Server) intermediateResponses(f *feature, c *ast.Command) streamFunc {
	target := f.commandID(c)
	return func(ctx context.Context, req *dynamicpb.Message, send func(proto.Message) error) error {
		return s.newCall(f, codegen.IntermediateMethod(c.Identifier), identifier.FullyQualifiedIdentifier{}).run(ctx, func(ctx context.Context) error {
			exec, err := s.executions.lookup(target, executionID(req))
			if err != nil {
				return err
			}
			updates, cancel := exec.subscribe()
			defer cancel()
			for {
				select {
				case msg, ok := <-updates:
					if !ok {
						return nil
					}
					if err := send(msg); err != nil {
						return err
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}
}

func (s *Server) executionResult(f *feature, c *ast.Command) unaryFunc {
	target := f.commandID(c)
	return func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
		var out proto.Message
		err := s.newCall(f, codegen.ResultMethod(c.Identifier), identifier.FullyQualifiedIdentifier{}).run(ctx, func(ctx context.Context) error {
			exec, err := s.executions.lookup(target, executionID(req))
			if err != nil {
				return err
			}
			out, err = exec.outcome()
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func propertyElements(p *ast.Property) []*ast.Element {
	return []*ast.Element{{Identifier: p.Identifier, Type: p.Type}}
}

func (s *Server) getProperty(f *feature, p *ast.Property) unaryFunc {
	handler := f.impl.Properties[p.Identifier]
	target := f.propertyID(p)
	method := codegen.GetMethod(p.Identifier)
	return func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
		var out proto.Message
		err := s.newCall(f, method, target).run(ctx, func(ctx context.Context) error {
			if handler == nil {
				return notImplemented(target)
			}
			v, err := handler(ctx)
			if err != nil {
				return err
			}
			out, err = f.message(codegen.ResponsesMessage(method), propertyElements(p), Values{p.Identifier: v})
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func (s *Server) subscribeProperty(f *feature, p *ast.Property) streamFunc {
	handler := f.impl.ObservableProperties[p.Identifier]
	target := f.propertyID(p)
	method := codegen.SubscribeMethod(p.Identifier)
	return func(ctx context.Context, req *dynamicpb.Message, send func(proto.Message) error) error {
		return s.newCall(f, method, target).run(ctx, func(ctx context.Context) error {
			if handler == nil {
				return notImplemented(target)
			}
			return handler(ctx, func(v interface{}) error {
				msg, err := f.message(codegen.ResponsesMessage(method), propertyElements(p), Values{p.Identifier: v})
				if err != nil {
					return err
				}
				return send(msg)
			})
		})
	}
}

func (s *Server) affectedCalls(f *feature, m *ast.Metadata) unaryFunc {
	method := codegen.AffectedByMetadataMethod(m.Identifier)
	elements := []*ast.Element{{
		Identifier: codegen.AffectedCallsField,
		Type:       &ast.ListType{Element: &ast.BasicType{Kind: ast.BasicString}},
	}}
	return func(ctx context.Context, req *dynamicpb.Message) (proto.Message, error) {
		var out proto.Message
		err := s.newCall(f, method, identifier.FullyQualifiedIdentifier{}).run(ctx, func(ctx context.Context) error {
			affected := f.impl.AffectedByMetadata[m.Identifier]
			if affected == nil {
				affected = []string{}
			}
			var err error
			out, err = f.message(codegen.ResponsesMessage(method), elements, Values{codegen.AffectedCallsField: affected})
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
