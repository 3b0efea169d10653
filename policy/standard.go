package policy

import "time"

// StandardPrefixes are the built-in prefix rules of the market dashboard:
// live quotes and the heatmap refresh quickly, chart series slowly.
func StandardPrefixes() []Option {
	return []Option{
		WithPrefix("stock:", 15*time.Second),
		WithPrefix("historical:", 5*time.Minute),
		WithPrefix("heatmap:", 15*time.Second),
	}
}

// StandardRules lists the registered rules of the market dashboard in
// registration order.
var StandardRules = []Rule{
	{Pattern: "overview", TTL: 5 * time.Minute},
	{Pattern: "heatmap", TTL: 10 * time.Minute}, // long, the full heatmap costs ~500 upstream calls
	{Pattern: "stock:*", TTL: 30 * time.Second},
	{Pattern: "details:*", TTL: 30 * time.Second},
	{Pattern: "historical:*", TTL: time.Hour},
	{Pattern: "quotes", TTL: 10 * time.Minute},
}

// Standard returns a policy preloaded with the built-in prefixes and the
// standard rules.
//
// Because prefix rules are consulted first, the "stock:*" and
// "historical:*" entries are shadowed by the "stock:" and "historical:"
// prefixes.
func Standard(opts ...Option) *TTLPolicy {
	p := New(append(StandardPrefixes(), opts...)...)
	for _, r := range StandardRules {
		p.MustRegister(r.Pattern, r.TTL)
	}
	return p
}
