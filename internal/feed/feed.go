package feed

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type objectAPI interface {
	s3.ListObjectsV2APIClient
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Generator renders an RSS feed of published images.
type Generator struct {
	client  objectAPI
	bucket  string
	baseURL string
}

func NewS3Generator(i *do.Injector) (*Generator, error) {
	client := do.MustInvoke[*s3.Client](i)
	bucket := do.MustInvokeNamed[string](i, "bucket")
	baseURL := do.MustInvokeNamed[string](i, "public_url")
	return &Generator{client, bucket, strings.TrimRight(baseURL, "/")}, nil
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed").With("bucket", g.bucket)
	log.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "hfimage",
		Description: "Images generated through the inference API",
		Link:        &feeds.Link{Href: g.baseURL},
		Updated:     time.Now(),
	}

	pager := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
	})

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			return published(aws.ToString(o.Key))
		})

		for _, obj := range objs {
			obj := obj
			group.Go(func() error {
				out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
					Bucket: aws.String(g.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					return err
				}

				meta := out.Metadata
				item := &feeds.Item{
					Title:       fmt.Sprintf("%s:%s", meta["model"], meta["prompt"]),
					Link:        &feeds.Link{Href: g.baseURL + "/" + aws.ToString(obj.Key)},
					Id:          aws.ToString(obj.Key),
					Description: meta["prompt"],
					Updated:     aws.ToTime(out.LastModified),
				}
				mu.Lock()
				feed.Add(item)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.After(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}

var imageExtensions = []string{".png", ".jpg", ".gif"}

// published matches the dated artifact keys; latest.<ext> is a moving alias.
func published(key string) bool {
	ext := path.Ext(key)
	return lo.Contains(imageExtensions, ext) && strings.TrimSuffix(path.Base(key), ext) != "latest"
}
