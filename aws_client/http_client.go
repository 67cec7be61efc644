package aws_client

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/rs/dnscache"
	"golang.org/x/sync/semaphore"
)

// A single HTTP client shared across all AWS SDK clients. Go does not cache
// DNS lookups by default, so highly parallel group writes would otherwise
// perform a lookup per request; the cache plus a lookup semaphore keeps
// pressure off the DNS layer, and a per-host connection cap keeps the socket
// count bounded.
func initializeHTTPClient() aws.HTTPClient {
	// limit on parallel DNS lookups
	dnsLookupMaxParallel := readEnvVarToInt("KINARCH_AWS_DNS_LOOKUP_MAX_PARALLEL", 25)

	// interval at which unused cache entries are dropped and used ones
	// refreshed; -1 disables the cache entirely
	dnsCacheRefreshIntervalSecs := readEnvVarToInt("KINARCH_AWS_DNS_CACHE_REFRESH_INTERVAL_SECS", 300)

	// max HTTPS connections per host; 0 removes the limit
	httpTransportMaxConnsPerHost := readEnvVarToInt("KINARCH_AWS_HTTP_TRANSPORT_MAX_CONNS_PER_HOST", 5000)

	var resolver = &dnscache.Resolver{}
	if dnsCacheRefreshIntervalSecs > 0 {
		go func() {
			t := time.NewTicker(time.Duration(dnsCacheRefreshIntervalSecs) * time.Second)
			defer t.Stop()
			for range t.C {
				resolver.Refresh(true)
			}
		}()
	}

	client := awshttp.NewBuildableClient()

	if httpTransportMaxConnsPerHost > 0 {
		client = client.WithTransportOptions(func(tr *http.Transport) {
			tr.MaxConnsPerHost = httpTransportMaxConnsPerHost
		})
	}

	if dnsCacheRefreshIntervalSecs >= 0 {
		sem := semaphore.NewWeighted(int64(dnsLookupMaxParallel))
		dialer := client.GetDialer()

		client = client.WithTransportOptions(func(tr *http.Transport) {
			tr.DialContext = func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}

				if err := sem.Acquire(ctx, 1); err != nil {
					return nil, err
				}
				ips, err := resolver.LookupHost(ctx, host)
				sem.Release(1)
				if err != nil {
					return nil, err
				}

				// try each resolved address until one connects
				for _, ip := range ips {
					conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						break
					}
				}

				return
			}
		})
	}

	return client
}

var sharedHTTPClient = initializeHTTPClient()

func readEnvVarToInt(name string, defaultVal int) int {
	val := defaultVal
	envValue := os.Getenv(name)
	if envValue != "" {
		i, err := strconv.Atoi(envValue)
		if err == nil {
			val = i
		}
	}
	return val
}
