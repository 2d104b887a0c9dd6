// Package tests holds the backend-agnostic blob.Store conformance suite,
// embedded by each adapter's own _test.go to run it against that backend.
package tests

import (
	"strings"

	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	"github.com/open-collar/reliablequeue/pkg/test"
)

// BlobSuite exercises the blob.Store contract against whatever Store the
// embedding test assigns in its own SetupTest.
type BlobSuite struct {
	test.Suite
	Store blob.Store
}

func (s *BlobSuite) TestUploadDownload() {
	err := s.Store.Upload(s.Ctx, "a/b.txt", strings.NewReader("hello"))
	s.NoError(err)

	rc, err := s.Store.Download(s.Ctx, "a/b.txt")
	s.Require().NoError(err)
	defer rc.Close()

	buf := make([]byte, 5)
	n, _ := rc.Read(buf)
	s.Equal("hello", string(buf[:n]))
}

func (s *BlobSuite) TestDownloadMissing() {
	_, err := s.Store.Download(s.Ctx, "missing")
	s.Error(err)
}

func (s *BlobSuite) TestUploadOverwrites() {
	s.Require().NoError(s.Store.Upload(s.Ctx, "k", strings.NewReader("v1")))
	s.Require().NoError(s.Store.Upload(s.Ctx, "k", strings.NewReader("v2")))

	rc, err := s.Store.Download(s.Ctx, "k")
	s.Require().NoError(err)
	defer rc.Close()

	buf := make([]byte, 2)
	n, _ := rc.Read(buf)
	s.Equal("v2", string(buf[:n]))
}

func (s *BlobSuite) TestDelete() {
	s.Require().NoError(s.Store.Upload(s.Ctx, "k", strings.NewReader("v")))
	s.NoError(s.Store.Delete(s.Ctx, "k"))

	_, err := s.Store.Download(s.Ctx, "k")
	s.Error(err)
}

func (s *BlobSuite) TestDeleteMissing() {
	err := s.Store.Delete(s.Ctx, "missing")
	s.Error(err)
}

func (s *BlobSuite) TestURLNonEmpty() {
	s.Require().NoError(s.Store.Upload(s.Ctx, "k", strings.NewReader("v")))
	s.NotEmpty(s.Store.URL("k"))
}
