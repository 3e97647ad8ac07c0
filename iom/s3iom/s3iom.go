// Package s3iom is an S3-compatible blob persistence backend, the
// domain-stack addition SPEC_FULL.md §4.3a calls for: every tenant
// bucket maps to a key prefix inside one underlying S3 bucket, the way
// fileiom maps tenants to subdirectories. Object naming follows the
// same punycode-escaped packed-key scheme as fileiom (adapted from
// ais/prxs3.go's bucket/object-name shape, translated from a
// server-side S3 handler into a client-side backend).
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package s3iom

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/dataobj"
	"github.com/sandialabs/kelpie/iom"
)

var recognizedSettings = []iom.SettingDescriptor{
	{Name: "s3_bucket", Description: "underlying S3 bucket every tenant bucket is prefixed into"},
	{Name: "region", Description: "AWS region"},
	{Name: "prefix", Description: "optional key prefix shared by every object this backend owns"},
}

func init() {
	iom.RegisterFactory("s3", newBackend)
}

// Backend stores one S3 object per DO under
// <prefix>/<bucket_hex>/<punycode(pup)>.
type Backend struct {
	iom.BaseBackend
	client   *s3.Client
	s3Bucket string
	prefix   string
}

func newBackend(name string, settings map[string]string) (iom.Backend, error) {
	filtered := iom.FilterSettings(settings, recognizedSettings)
	s3Bucket, ok := filtered["s3_bucket"]
	if !ok {
		return nil, cmn.NewErr(cmn.InvalidArg, "s3 iom %q: missing required setting \"s3_bucket\"", name)
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if region, ok := filtered["region"]; ok {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, cmn.WrapErr(cmn.IOError, err, "load AWS config for s3 iom %q", name)
	}

	return &Backend{
		BaseBackend: iom.NewBaseBackend(name, filtered),
		client:      s3.NewFromConfig(cfg),
		s3Bucket:    s3Bucket,
		prefix:      filtered["prefix"],
	}, nil
}

func (b *Backend) bucketPrefix(bucket cmn.Bucket) string {
	name := bucket.Hex() + "/"
	if b.prefix == "" {
		return name
	}
	return strings.TrimSuffix(b.prefix, "/") + "/" + name
}

func (b *Backend) objectKey(bucket cmn.Bucket, key cmn.Key) string {
	return b.bucketPrefix(bucket) + cmn.MakePunycode(key.Pup())
}

func (b *Backend) WriteObject(bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error {
	var buf bytes.Buffer
	if _, err := do.WriteTo(&buf); err != nil {
		return cmn.WrapErr(cmn.IOError, err, "encode object")
	}
	_, err := b.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.s3Bucket),
		Key:    aws.String(b.objectKey(bucket, key)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return cmn.WrapErr(cmn.IOError, err, "put %v", key)
	}
	return nil
}

func (b *Backend) WriteObjects(bucket cmn.Bucket, kvs []iom.KeyVal) error {
	var lastErr error
	for _, kv := range kvs {
		if err := b.WriteObject(bucket, kv.Key, kv.DO); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (b *Backend) ReadObject(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error) {
	out, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.s3Bucket),
		Key:    aws.String(b.objectKey(bucket, key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return dataobj.DO{}, cmn.WrapErr(cmn.NotFound, err, "no such object %v in bucket %s", key, bucket)
		}
		return dataobj.DO{}, cmn.WrapErr(cmn.IOError, err, "get %v", key)
	}
	defer out.Body.Close()
	return dataobj.ReadFrom(out.Body)
}

func (b *Backend) ReadObjects(bucket cmn.Bucket, keys []cmn.Key) ([]iom.KeyVal, []cmn.Key, cmn.Kind) {
	var found []iom.KeyVal
	var missing []cmn.Key
	for _, k := range keys {
		do, err := b.ReadObject(bucket, k)
		if err != nil {
			missing = append(missing, k)
			continue
		}
		found = append(found, iom.KeyVal{Key: k, DO: do})
	}
	if len(missing) > 0 {
		return found, missing, cmn.Recheck
	}
	return found, missing, cmn.Ok
}

// GetInfo uses HeadObject's Content-Length so Info never pulls the
// payload across the network, mirroring fileiom's stat(2)-only path.
func (b *Backend) GetInfo(bucket cmn.Bucket, key cmn.Key) (iom.ObjectInfo, error) {
	out, err := b.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(b.s3Bucket),
		Key:    aws.String(b.objectKey(bucket, key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return iom.ObjectInfo{}, cmn.WrapErr(cmn.NotFound, err, "no such object %v in bucket %s", key, bucket)
		}
		return iom.ObjectInfo{}, cmn.WrapErr(cmn.IOError, err, "head %v", key)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength - cmn.HeaderSize
	}
	return iom.ObjectInfo{Availability: iom.InDisk, UserBytes: size}, nil
}

// List pages through ListObjectsV2 under the bucket's prefix, matching
// each unpacked key against pattern client-side (S3 only offers
// lexicographic prefix matching, not cmn.Key's wildcard semantics).
func (b *Backend) List(bucket cmn.Bucket, pattern cmn.Key) (iom.ObjectCapacities, error) {
	listPrefix := b.bucketPrefix(bucket)

	var out iom.ObjectCapacities
	var token *string
	for {
		page, err := b.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.s3Bucket),
			Prefix:            aws.String(listPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return iom.ObjectCapacities{}, cmn.WrapErr(cmn.IOError, err, "list bucket %s", bucket)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			packed, perr := cmn.ExpandPunycode(name)
			if perr != nil {
				continue
			}
			key, kerr := cmn.UnpackPup(packed)
			if kerr != nil || !pattern.Matches(key) {
				continue
			}
			size := int64(0)
			if obj.Size != nil {
				size = *obj.Size - cmn.HeaderSize
			}
			out.Keys = append(out.Keys, key)
			out.Capacities = append(out.Capacities, size)
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func (b *Backend) Close() error { return nil }

var _ iom.Backend = (*Backend)(nil)
