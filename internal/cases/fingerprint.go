package cases

// fingerprint derives the device fingerprint recorded at store time from
// the submitting agent string.
func fingerprint(userAgent string) string {
	if userAgent == "" {
		userAgent = "unknown-agent"
	}
	return userAgent + "-SECURE-FINGERPRINT"
}
