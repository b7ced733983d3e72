package sink

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jittakal/resistor/pkg/event"
	"github.com/jittakal/resistor/pkg/sink"
)

var _ sink.Router = (*HiveRouter)(nil)

// HiveRouter lays objects out in Hive-style partitions:
//
//	basePath/topic/version/dt=YYYY-MM-DD/pid=N/
//
// Partitioning uses event time, not processing time.
type HiveRouter struct {
	basePath string
	version  string
}

// NewRouter creates a router. version is used when a record carries no
// spec version.
func NewRouter(basePath, version string) *HiveRouter {
	return &HiveRouter{
		basePath: strings.Trim(basePath, "/"),
		version:  version,
	}
}

// Route returns the object prefix, always ending in "/".
func (r *HiveRouter) Route(partitionID event.PartitionID, eventTime time.Time, specVersion string) string {
	version := r.version
	if v := strings.ReplaceAll(specVersion, ".", ""); v != "" {
		version = "v" + v
	}

	prefix := path.Join(
		r.basePath,
		partitionID.Topic,
		version,
		"dt="+eventTime.UTC().Format("2006-01-02"),
		fmt.Sprintf("pid=%d", partitionID.Partition),
	)
	return prefix + "/"
}

// ObjectName returns a unique object key under prefix.
// Format: prefix/events_YYYYMMDD_HHMMSS_<batch id><ext>
func ObjectName(prefix string, now time.Time, ext string) string {
	return fmt.Sprintf("%sevents_%s_%s%s", prefix, now.UTC().Format("20060102_150405"), uuid.NewString(), ext)
}
