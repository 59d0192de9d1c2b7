package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/auth"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// classify maps one HTTP attempt outcome to the error taxonomy. A nil return
// means success. statusCode is 0 when the request never completed.
//
//	2xx                    success (unless token expiry detected in the body)
//	429                    RATE_LIMIT
//	408, timeout, abort    TIMEOUT
//	network error          NETWORK
//	5xx                    SERVER_ERROR
//	401, 403               AUTH_ERROR
//	other 4xx              CLIENT_ERROR
func classify(statusCode int, body []byte, reqErr error, detection *models.TokenExpirationDetection) error {
	if reqErr != nil {
		if errors.Is(reqErr, context.DeadlineExceeded) || errors.Is(reqErr, context.Canceled) || isTimeout(reqErr) {
			return models.NewCategorizedError(models.CategoryTimeout, reqErr)
		}
		return models.NewCategorizedError(models.CategoryNetwork, reqErr)
	}

	switch {
	case statusCode >= 200 && statusCode <= 299:
		if auth.TokenExpired(detection, body) {
			return &models.CategorizedError{
				Category:   models.CategoryAuthError,
				StatusCode: statusCode,
				Err:        fmt.Errorf("target reported an expired token"),
			}
		}
		return nil

	case statusCode == 429:
		return statusErr(models.CategoryRateLimit, statusCode)
	case statusCode == 408:
		return statusErr(models.CategoryTimeout, statusCode)
	case statusCode >= 500:
		return statusErr(models.CategoryServerError, statusCode)
	case statusCode == 401 || statusCode == 403:
		return statusErr(models.CategoryAuthError, statusCode)
	case statusCode >= 400:
		return statusErr(models.CategoryClientError, statusCode)
	default:
		return statusErr(models.CategoryUnknown, statusCode)
	}
}

func statusErr(category models.ErrorCategory, statusCode int) error {
	return &models.CategorizedError{
		Category:   category,
		StatusCode: statusCode,
		Err:        fmt.Errorf("target returned status %d", statusCode),
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
