package storage

import (
	"testing"

	"estate_scrooper/config"
)

func TestPublicURL(t *testing.T) {
	aws := &S3Uploader{cfg: config.S3Config{Bucket: "listings", Region: "eu-west-3"}}
	if got := aws.PublicURL("exports/properties.csv"); got != "https://listings.s3.eu-west-3.amazonaws.com/exports/properties.csv" {
		t.Fatalf("unexpected AWS url %s", got)
	}

	minio := &S3Uploader{cfg: config.S3Config{Bucket: "listings", Endpoint: "http://localhost:9000/"}}
	if got := minio.PublicURL("exports/properties.csv"); got != "http://localhost:9000/listings/exports/properties.csv" {
		t.Fatalf("unexpected path-style url %s", got)
	}
}
