package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and timeouts
- Classify failures into the terminal taxonomy
- Retry transient failures with jittered backoff

Fetch Semantics

- Any content type is accepted; the archiver stores raw bytes
- Transport timeouts, connection failures and 5xx are transient
- 4xx and TLS verification failures are terminal
- TLS certificates are verified unless insecure mode is explicitly enabled
- All fetch attempts are logged with metadata

The fetcher never parses content; it only returns bytes and metadata.
*/

type HTTPFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
}

func NewHTTPFetcher(
	metadataSink metadata.MetadataSink,
	timeout time.Duration,
	insecureTLS bool,
) HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return HTTPFetcher{
		metadataSink: metadataSink,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (h *HTTPFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HTTPFetcher.Fetch"
	startTime := time.Now()

	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam.fetchUrl, fetchParam.userAgent)
	}

	result, attempts, err := retry.Retry(retryParam, fetchTask)
	duration := time.Since(startTime)

	if err != nil {
		h.metadataSink.RecordFetch(
			fetchParam.fetchUrl.String(),
			0,
			duration,
			"",
			attempts,
			crawlDepth,
		)
		h.recordFetchError(callerMethod, fetchParam.fetchUrl, err)
		return FetchResult{}, classifyTerminal(err, attempts)
	}

	result.attempts = attempts
	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		result.Code(),
		duration,
		result.ContentType(),
		attempts,
		crawlDepth,
	)
	return result, nil
}

// classifyTerminal collapses a retry-layer exhaustion error back to the
// fetch taxonomy the archive records. A RetryError wraps the last transient
// fetch failure, whose cause is what the failure record should name.
func classifyTerminal(err failure.ClassifiedError, attempts int) failure.ClassifiedError {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return &FetchError{
			Message:   fmt.Sprintf("%s after %d attempts", fetchErr.Message, attempts),
			Retryable: false,
			Cause:     fetchErr.Cause,
			Attempts:  attempts,
		}
	}
	return err
}

func (h *HTTPFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err failure.ClassifiedError) {
	cause := metadata.CauseRetryFailure
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		cause = mapFetchErrorToMetadataCause(fetchError)
	}
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
		},
	)
}

func (h *HTTPFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseConnection,
		}
	}

	for key, value := range requestHeaders(userAgent) {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	// Handle HTTP status codes
	switch {
	case resp.StatusCode >= 500:
		// Server errors (5xx) are retryable
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseHTTP5xx,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseHTTP4xx,
		}

	case resp.StatusCode >= 400:
		// Client errors are terminal
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseHTTP4xx,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadBody,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	return FetchResult{
		url:  fetchUrl,
		body: body,
		meta: ResponseMeta{
			statusCode:          resp.StatusCode,
			proto:               resp.Proto,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     responseHeaders,
		},
	}, nil
}

// classifyTransportError maps transport-level failures into the terminal
// taxonomy: timeouts and connection failures are transient, certificate
// failures are terminal (retrying cannot fix a bad certificate), and a
// cancelled crawl context is terminal (retrying against a dead context
// only burns backoff sleeps).
func classifyTransportError(err error) *FetchError {
	if errors.Is(err, context.Canceled) {
		return &FetchError{
			Message:   "request cancelled",
			Retryable: false,
			Cause:     ErrCauseCancelled,
		}
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return &FetchError{
			Message:   fmt.Sprintf("certificate verification failed: %v", err),
			Retryable: false,
			Cause:     ErrCauseTLS,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{
			Message:   fmt.Sprintf("request timed out: %v", err),
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{
			Message:   fmt.Sprintf("request timed out: %v", err),
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}

	return &FetchError{
		Message:   fmt.Sprintf("request failed: %v", err),
		Retryable: true,
		Cause:     ErrCauseConnection,
	}
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.5",
		"Connection":      "keep-alive",
	}
}
