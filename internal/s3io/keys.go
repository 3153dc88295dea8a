package s3io

import (
	"fmt"
	"strings"
)

// Evidence objects live under claim-scoped prefixes:
//
//	user/<sub>/<claimID>/documents/<objectID>.<ext>
//	user/<sub>/<claimID>/photos/<objectID>.<ext>

// BuildKey constructs the S3 key for one evidence object.
func BuildKey(userID, claimID, kind, objectID, ext string) string {
	return fmt.Sprintf("user/%s/%s/%s/%s%s", userID, claimID, kind, objectID, ext)
}

// ParseKey extracts user, claim and evidence kind from an evidence key.
func ParseKey(key string) (userID, claimID, kind string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != "user" {
		return "", "", "", false
	}
	kind = parts[3]
	if kind != "documents" && kind != "photos" {
		return "", "", "", false
	}
	return parts[1], parts[2], kind, true
}

// ObjectURL renders the canonical URL persisted on the claim record.
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// UploadHeaders lists the headers the client must send on the presigned PUT.
func UploadHeaders(userID, claimID, kind, contentType string) map[string]string {
	return map[string]string{
		"Content-Type":                 contentType,
		"x-amz-server-side-encryption": "aws:kms",
		"x-amz-meta-claim_id":          claimID,
		"x-amz-meta-user_id":           userID,
		"x-amz-meta-kind":              kind,
	}
}
