package dailybrief

import "net/url"

// ConfirmURL is the link a subscriber follows to confirm their subscription.
func ConfirmURL(siteURL, token string) string {
	return siteURL + "/api/confirm?token=" + url.QueryEscape(token)
}

// UnsubscribeURL is the link a subscriber follows to reach the unsubscribe page.
func UnsubscribeURL(siteURL, token string) string {
	return siteURL + "/api/unsubscribe?token=" + url.QueryEscape(token)
}
