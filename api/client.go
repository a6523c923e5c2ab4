package api

import (
	"context"
	"net/http"

	"github.com/MrEthical07/ctadmin/transport"
)

func call(ctx context.Context, d transport.Dispatcher, req transport.Request, out any) error {
	if d == nil {
		return ErrNilDispatcher
	}
	resp, err := d.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func jsonRequest(method, path string, body any) (transport.Request, error) {
	req := transport.NewRequest(method, path)
	if body == nil {
		return req, nil
	}
	return req.WithJSON(body)
}

func get(path string) transport.Request {
	return transport.NewRequest(http.MethodGet, path)
}
