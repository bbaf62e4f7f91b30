package dailybrief

import (
	uuid "github.com/satori/go.uuid"
)

const (
	referralAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeLength = 8
)

// referralBytes are the indexes of a V4 uuid that carry no version or variant bits.
var referralBytes = [referralCodeLength]int{0, 9, 10, 11, 12, 13, 14, 15}

// NewReferralCode returns an 8 character code drawn from A-Z0-9.
func NewReferralCode() string {
	b := uuid.NewV4().Bytes()
	code := make([]byte, referralCodeLength)
	for i, j := range referralBytes {
		code[i] = referralAlphabet[int(b[j])%len(referralAlphabet)]
	}
	return string(code)
}

// ReferralURL links to the site with the subscriber's referral code.
func ReferralURL(siteURL, code string) string {
	if code == "" {
		return siteURL
	}
	return siteURL + "?ref=" + code
}
