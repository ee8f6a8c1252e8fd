package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/time/rate"

	"sitewarden/internal/ports"
)

// ErrQueryRefused is returned when a zone refuses to answer the resolver,
// typically a public resolver hitting Spamhaus.
var ErrQueryRefused = errors.New("dnsbl query refused")

// DNSBL checks names against DNS reputation zones.
type DNSBL struct {
	client  *dns.Client
	server  string
	limiter *rate.Limiter
}

var _ ports.BlacklistResolver = (*DNSBL)(nil)

func NewDNSBL(server string, timeout time.Duration, rps float64) *DNSBL {
	client := new(dns.Client)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &DNSBL{
		client:  client,
		server:  server,
		limiter: newLimiter(rps),
	}
}

// Listed resolves name.zone. NXDOMAIN means not listed, any A record means
// listed.
func (d *DNSBL) Listed(ctx context.Context, name, zone string) (bool, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return false, err
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name+"."+zone), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := d.client.ExchangeContext(ctx, m, d.server)
	if err != nil {
		return false, fmt.Errorf("dnsbl %s: %w", zone, err)
	}

	switch in.Rcode {
	case dns.RcodeNameError:
		return false, nil
	case dns.RcodeSuccess:
	case dns.RcodeRefused:
		return false, fmt.Errorf("dnsbl %s: %w", zone, ErrQueryRefused)
	default:
		return false, fmt.Errorf("dnsbl %s: rcode %s", zone, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip := a.A.To4()
		// 127.255.255.0/24 are Spamhaus error codes, not listings.
		if ip != nil && ip[0] == 127 && ip[1] == 255 && ip[2] == 255 {
			return false, fmt.Errorf("dnsbl %s returned %s: %w", zone, ip, ErrQueryRefused)
		}
		return true, nil
	}
	return false, nil
}
