// Package fetch retrieves archived pages over HTTP.
//
// Client sends the scraper's User-Agent and Accept headers, bounds each
// attempt with a timeout, retries network errors and non-2xx responses,
// and throttles requests per host with a HostLimiter. Requests can be routed
// through a SOCKS5 proxy for environments where the archive is only
// reachable that way.
//
// # Usage
//
//	client, err := fetch.NewClient(
//		fetch.WithTimeout(10*time.Second),
//		fetch.WithLimiter(fetch.NewHostLimiter(2, 1)),
//	)
//	if err != nil {
//		return err
//	}
//	body, err := client.Fetch(ctx, "https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/")
package fetch
