package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// Signing wire contract headers.
const (
	HeaderSignature = "X-Integration-Signature"
	HeaderTimestamp = "X-Integration-Timestamp"
	HeaderMessageID = "X-Integration-Id"
)

// signatureVersion prefixes every signature value.
const signatureVersion = "v1"

// VerifySkew is the receiver-side tolerance for the signed timestamp.
const VerifySkew = 300 * time.Second

// signingString builds the exact byte sequence that is signed:
// "<messageId>.<unix-seconds>.<body>".
func signingString(messageID string, ts int64, body []byte) []byte {
	prefix := messageID + "." + strconv.FormatInt(ts, 10) + "."
	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...)
}

func sign(secret string, messageID string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signingString(messageID, ts, body))
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignatureHeaders produces the signing headers for the final body. Every
// active secret contributes one signature, space-separated, so receivers
// keep verifying across a rotation.
func SignatureHeaders(signing models.SigningSpec, messageID string, ts time.Time, body []byte) map[string]string {
	if !signing.Enabled || len(signing.Secrets) == 0 {
		return nil
	}
	unix := ts.Unix()
	signatures := make([]string, 0, len(signing.Secrets))
	for _, s := range signing.Secrets {
		signatures = append(signatures, sign(s.Secret, messageID, unix, body))
	}
	return map[string]string{
		HeaderMessageID: messageID,
		HeaderTimestamp: strconv.FormatInt(unix, 10),
		HeaderSignature: strings.Join(signatures, " "),
	}
}

// VerifySignature checks a received signature header set against one secret.
// It accepts iff any signature matches and the timestamp is within
// VerifySkew of now.
func VerifySignature(secret, messageID, timestampHeader, signatureHeader string, body []byte, now time.Time) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp %q", timestampHeader)
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(VerifySkew/time.Second) {
		return fmt.Errorf("timestamp outside tolerance: %ds", skew)
	}

	expected := sign(secret, messageID, ts, body)
	for _, candidate := range strings.Fields(signatureHeader) {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("no signature matched")
}
