package fetcher

import (
	"context"

	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/retry"
)

type Fetcher interface {
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
