package connection

import (
	"context"
	"fmt"

	"github.com/ZentaChain/zentalk-collab/pkg/encoding"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

// DecodeValue decodes data with the content codec of msg. Empty data leaves
// v untouched.
func DecodeValue(msg *protocol.Message, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	name := msg.ContentEncoding
	if name == "" {
		name = encoding.JSONName
	}
	codec, err := encoding.Lookup(name)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", encoding.ErrDecode, err)
	}
	return nil
}

// EncodeValue encodes v with the connection codec
func (c *Connection) EncodeValue(v any) ([]byte, error) {
	return c.codec.Marshal(v)
}

// SendRequest sends a typed request and decodes its result
func SendRequest[P, R any](ctx context.Context, c *Connection, t protocol.RequestType[P, R], target string, params P, opts ...RequestOption) (R, error) {
	var zero R
	data, err := c.EncodeValue(params)
	if err != nil {
		return zero, err
	}
	resp, err := c.Request(ctx, target, t.Method, data, opts...)
	if err != nil {
		return zero, err
	}
	var result R
	if err := DecodeValue(resp, resp.Content.Result, &result); err != nil {
		return zero, err
	}
	return result, nil
}

// SendNotification sends a typed notification
func SendNotification[P any](ctx context.Context, c *Connection, t protocol.NotificationType[P], target string, params P) error {
	data, err := c.EncodeValue(params)
	if err != nil {
		return err
	}
	return c.Notify(ctx, target, t.Method, data)
}

// SendBroadcast sends a typed broadcast
func SendBroadcast[P any](ctx context.Context, c *Connection, t protocol.BroadcastType[P], params P) error {
	data, err := c.EncodeValue(params)
	if err != nil {
		return err
	}
	return c.Broadcast(ctx, t.Method, data)
}

// HandleRequest registers a typed request handler
func HandleRequest[P, R any](c *Connection, t protocol.RequestType[P, R], fn func(ctx context.Context, origin string, params P) (R, error)) {
	c.OnRequest(t.Method, func(ctx context.Context, msg *protocol.Message) ([]byte, error) {
		var params P
		if err := DecodeValue(msg, msg.Content.Params, &params); err != nil {
			return nil, err
		}
		result, err := fn(ctx, msg.Origin, params)
		if err != nil {
			return nil, err
		}
		return c.EncodeValue(result)
	})
}

// HandleNotification registers a typed notification handler
func HandleNotification[P any](c *Connection, t protocol.NotificationType[P], fn func(ctx context.Context, origin string, params P) error) {
	c.OnNotification(t.Method, typedMessage(fn))
}

// HandleBroadcast registers a typed broadcast handler
func HandleBroadcast[P any](c *Connection, t protocol.BroadcastType[P], fn func(ctx context.Context, origin string, params P) error) {
	c.OnBroadcast(t.Method, typedMessage(fn))
}

func typedMessage[P any](fn func(ctx context.Context, origin string, params P) error) MessageHandler {
	return func(ctx context.Context, msg *protocol.Message) error {
		var params P
		if err := DecodeValue(msg, msg.Content.Params, &params); err != nil {
			return err
		}
		return fn(ctx, msg.Origin, params)
	}
}
