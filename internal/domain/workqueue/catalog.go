package workqueue

import (
	"strconv"
	"sync"

	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

// DemoStudy is the MR brain study shown in the workqueue next to admissions.
func DemoStudy() dicomweb.Metadata {
	return dicomweb.Metadata{}.
		Set(dicomweb.TagPatientName, dicomweb.PersonNames("CASILLAS, GABE")).
		Set(dicomweb.TagModality, dicomweb.Strings("CS", "MR")).
		Set(dicomweb.TagStudyDescription, dicomweb.Strings("LO", "BRAIN W/O CONTRAST")).
		Set(dicomweb.TagStudyDate, dicomweb.Strings("DA", "20260227")).
		Set(dicomweb.TagStudyInstanceUID, dicomweb.Strings("UI", "1.2.840.113619.2.203.4.2147483647"))
}

// StudyCatalog holds DICOMweb studies registered for review, in arrival
// order. Studies are keyed by their instance UID, or by a sequence number when
// they carry none.
type StudyCatalog struct {
	mu      sync.RWMutex
	keys    []string
	studies map[string]dicomweb.Metadata
	seq     int
}

func NewStudyCatalog() *StudyCatalog {
	return &StudyCatalog{studies: make(map[string]dicomweb.Metadata)}
}

// Add registers md and returns its key. Re-adding a UID replaces the study
// in place.
func (c *StudyCatalog) Add(md dicomweb.Metadata) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := md.String(dicomweb.TagStudyInstanceUID)
	if !ok {
		c.seq++
		key = "local-" + strconv.Itoa(c.seq)
	}
	if _, exists := c.studies[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.studies[key] = md
	return key
}

func (c *StudyCatalog) Get(key string) (dicomweb.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.studies[key]
	return md, ok
}

// Keys returns study keys in arrival order.
func (c *StudyCatalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

func (c *StudyCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
