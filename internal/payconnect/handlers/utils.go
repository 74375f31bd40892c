package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
	"payconnect/pkg/logging"
)

const maxBodyBytes = 1 << 20

func closeBody(ctx context.Context, body io.ReadCloser, logger *logging.ZapLogger) {
	err := body.Close()
	if err != nil {
		logger.ErrorCtx(ctx, "failed to close body", zap.Error(err))
	}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	decoder := json.NewDecoder(r)
	err := decoder.Decode(&out)
	return out, err
}

func tryWriteResponseJSON(w http.ResponseWriter, statusCode int, responseItem any) error {
	res, err := json.Marshal(responseItem)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(res)
	if err != nil {
		return err
	}
	return nil
}

func writeResponseJSON(
	ctx context.Context,
	w http.ResponseWriter,
	statusCode int,
	responseItem any,
	logger *logging.ZapLogger,
) {
	if err := tryWriteResponseJSON(w, statusCode, responseItem); err != nil {
		logger.ErrorCtx(ctx, "error writing response", zap.Error(err))
	}
}

// rawOrString keeps a JSON upstream body as is and quotes anything else.
func rawOrString(body string) json.RawMessage {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(body)
	return quoted
}
