// Package esi expands Edge Side Include directives in HTML documents.
//
// Only <esi:include/> is supported. A tag takes a src URL, an optional alt
// URL tried when src fails, and onerror="continue" to drop a failing
// include instead of failing the whole document:
//
//	<esi:include src="/fragments/header" alt="/fragments/header-static" onerror="continue"/>
//
// Fetched fragments are expanded recursively. Directives inside a
// <!--esi ... --> block are left in the output as written.
//
// Usage:
//
//	fetcher, _ := client.New(policy.Akamai(), client.DefaultConfig())
//	resolver, _ := esi.New(fetcher, esi.Config{Debug: true})
//	body, changed, err := resolver.Resolve(ctx, page, client.OriginFromRequest(r))
//
// In debug mode malformed tags fail with ErrInvalidMarkup and nesting past
// the policy limit fails with ErrRecursionExceeded. Otherwise malformed tags
// are removed and nesting is bounded only by Config.HardLimit.
package esi
