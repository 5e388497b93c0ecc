package provider

import "encoding/base64"

// decodeGmailBase64URL decodes Gmail's URL-safe, unpadded base64 attachment
// and body payloads.
func decodeGmailBase64URL(data string) ([]byte, error) {
	return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
}

// decodeStandardBase64 decodes Graph API's standard base64 attachment bytes.
func decodeStandardBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
