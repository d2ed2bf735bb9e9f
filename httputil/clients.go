package httputil

import (
	"log"
	"net/http"
	"net/url"
	"time"

	"estate_scrooper/config"
)

type Clients struct {
	Scraping *http.Client // optionally proxied, for the listing site
	API      *http.Client // direct, for object storage and other services
}

func NewClients(proxyCfg *config.ProxyConfig, timeout time.Duration) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			log.Printf("Scraping through proxy: %s", proxyURL.Host)
		} else {
			log.Printf("Warning: ignoring invalid PROXY_URL: %v", err)
		}
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Clients{
		Scraping: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		API: &http.Client{Timeout: 30 * time.Second},
	}
}
