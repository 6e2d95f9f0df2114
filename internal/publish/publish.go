// Package publish uploads health reports to S3, optionally with a detached
// KMS signature next to each object.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/LumeWeb/portal-legacy/internal/cryptoutil"
	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/log"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Signer produces a detached signature over a document.
type Signer interface {
	Sign(ctx context.Context, message []byte) (cryptoutil.Signature, error)
}

type Options struct {
	Bucket string
	Prefix string
	// Signer is optional; nil publishes unsigned reports.
	Signer Signer
	Logger log.Logger
}

type S3Publisher struct {
	client s3API
	opts   Options
	logger log.Logger
}

func NewS3Publisher(client *s3.Client, opts Options) (*S3Publisher, error) {
	if client == nil {
		return nil, xerrors.New("publish: s3 client is required")
	}
	return newS3Publisher(client, opts)
}

func newS3Publisher(client s3API, opts Options) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("publish: bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &S3Publisher{client: client, opts: opts, logger: opts.Logger}, nil
}

// ReportKey is the object key of a report by run ID.
func (p *S3Publisher) ReportKey(rep health.Report) string {
	return path.Join(p.opts.Prefix, "reports", rep.ID.String()+".json")
}

// LatestKey is the object key that always holds the most recent report.
func (p *S3Publisher) LatestKey() string {
	return path.Join(p.opts.Prefix, "latest.json")
}

// Publish writes the report under its run ID and as latest.json. With a
// signer, each object gets a "<key>.sig" sibling. Returns the keys written.
func (p *S3Publisher) Publish(ctx context.Context, rep health.Report) ([]string, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode report")
	}

	var sig []byte
	digest := cryptoutil.SHA256Hex(body)
	if p.opts.Signer != nil {
		s, err := p.opts.Signer.Sign(ctx, body)
		if err != nil {
			return nil, xerrors.Wrap(err, "sign report")
		}
		if sig, err = json.Marshal(s); err != nil {
			return nil, xerrors.Wrap(err, "encode signature")
		}
	}

	var written []string
	for _, key := range []string{p.ReportKey(rep), p.LatestKey()} {
		if err := p.put(ctx, key, body, digest, rep); err != nil {
			return written, err
		}
		written = append(written, key)
		if sig != nil {
			if err := p.put(ctx, key+".sig", sig, "", rep); err != nil {
				return written, err
			}
			written = append(written, key+".sig")
		}
	}

	p.logger.Info(ctx, "published health report",
		"bucket", p.opts.Bucket,
		"run_id", rep.ID.String(),
		"signed", sig != nil,
		"objects", len(written),
	)
	return written, nil
}

func (p *S3Publisher) put(ctx context.Context, key string, body []byte, digest string, rep health.Report) error {
	meta := map[string]string{"run-id": rep.ID.String()}
	if digest != "" {
		meta["sha256"] = digest
	}
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.opts.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
		Metadata:     meta,
	})
	if err != nil {
		return xerrors.Wrapf(err, "put s3://%s/%s", p.opts.Bucket, key)
	}
	return nil
}
