// Package resolver follows the forum's intermediate "job"-style
// redirector pages to their final article URLs.
//
// Navigation anchors on the target forum often point at a redirector
// script instead of the article. The script answers with an HTTP
// redirect, an HTML meta refresh, or a small script that assigns
// location.href; Resolve handles all three. A link that cannot be
// resolved is reported with ErrUnresolvedRedirect and must be dropped
// by the caller, never enqueued.
package resolver
