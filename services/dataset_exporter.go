package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/media"
	"github.com/camden-git/labelsysbackend/metrics"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/repository"
	"github.com/camden-git/labelsysbackend/utils"
)

const (
	DefaultExportBatchSize = 200
	defaultImageExt        = ".jpg"
	dataYAMLName           = "data.yaml"
)

// DatasetExporter writes a project as a YOLO dataset archive:
//
//	data.yaml
//	images/{train,val}/<stem><ext>
//	labels/{train,val}/<stem>.txt
type DatasetExporter struct {
	projects    *repository.ProjectRepository
	classes     *repository.ClassRepository
	images      *repository.ImageRepository
	annotations *repository.AnnotationRepository
	store       media.Store
	batchSize   int
	metrics     *metrics.Metrics
}

func NewDatasetExporter(db *gorm.DB, store media.Store, batchSize int, m *metrics.Metrics) *DatasetExporter {
	if batchSize <= 0 {
		batchSize = DefaultExportBatchSize
	}
	return &DatasetExporter{
		projects:    repository.NewProjectRepository(db),
		classes:     repository.NewClassRepository(db),
		images:      repository.NewImageRepository(db),
		annotations: repository.NewAnnotationRepository(db),
		store:       store,
		batchSize:   batchSize,
		metrics:     m,
	}
}

// ArchiveName is the download name of a project's dataset archive
func (e *DatasetExporter) ArchiveName(project *models.Project) string {
	return project.Name + "_dataset.zip"
}

// Project loads the project to export, so callers can fail before they
// start writing a response
func (e *DatasetExporter) Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to load project")
	}
	return project, nil
}

// Export streams the dataset archive of the project to w. Images whose blob
// is missing are left out while their labels are still written; annotations
// whose class was deleted are dropped.
func (e *DatasetExporter) Export(ctx context.Context, projectID uuid.UUID, w io.Writer) (err error) {
	started := time.Now()
	walked := 0
	defer func() { e.metrics.ExportFinished(walked, started, err) }()

	if _, err = e.Project(ctx, projectID); err != nil {
		return err
	}
	classes, err := e.classes.ListByProject(ctx, projectID)
	if err != nil {
		return internal(err, "failed to list classes")
	}
	manifest, err := DataYAML(classes)
	if err != nil {
		return internal(err, "failed to encode data.yaml")
	}

	log := logger.L().With(zap.String("project_id", projectID.String()))
	archive := utils.NewArchiveWriter(w)
	defer archive.Close()

	if err = archive.WriteFile(dataYAMLName, manifest, started); err != nil {
		return err
	}

	indexOf := make(map[uuid.UUID]int, len(classes))
	for _, c := range classes {
		indexOf[c.ID] = c.ClassIndex
	}
	names := newStemRegistry()

	for offset := 0; ; offset += e.batchSize {
		if err = ctx.Err(); err != nil {
			return err
		}
		batch, err := e.images.Page(ctx, projectID, offset, e.batchSize)
		if err != nil {
			return internal(err, "failed to load images")
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]uuid.UUID, len(batch))
		for i, img := range batch {
			ids[i] = img.ID
		}
		byImage, err := e.annotations.ListByImages(ctx, ids)
		if err != nil {
			return internal(err, "failed to load annotations")
		}

		for i := range batch {
			if err := e.writeImage(log, archive, names, &batch[i], byImage[batch[i].ID], indexOf); err != nil {
				return err
			}
		}
		walked += len(batch)
		if len(batch) < e.batchSize {
			break
		}
	}

	if err = archive.Close(); err != nil {
		return err
	}
	log.Info("dataset exported", zap.Int("images", walked), zap.Int("entries", archive.Entries()), zap.Duration("took", time.Since(started)))
	return nil
}

func (e *DatasetExporter) writeImage(log *zap.Logger, archive *utils.ArchiveWriter, names *stemRegistry, img *models.Image, annotations []models.Annotation, indexOf map[uuid.UUID]int) error {
	split := models.SplitTrain
	if img.DatasetSplit != nil && *img.DatasetSplit != "" {
		split = *img.DatasetSplit
	}
	stem, ext := SplitFilename(img.Filename)
	stem = names.claim(split, stem, img.ID)

	if err := e.copyBlob(log, archive, img, "images/"+split+"/"+stem+ext); err != nil {
		return err
	}

	var labels bytes.Buffer
	for _, a := range annotations {
		idx, ok := indexOf[a.ClassID]
		if !ok {
			log.Warn("export: dropping annotation with deleted class",
				zap.String("image_id", img.ID.String()),
				zap.String("annotation_id", a.ID.String()),
				zap.String("class_id", a.ClassID.String()),
			)
			continue
		}
		labels.WriteString(LabelLine(idx, a.Vertices))
		labels.WriteByte('\n')
	}
	if labels.Len() == 0 {
		return nil
	}
	return archive.WriteFile("labels/"+split+"/"+stem+".txt", labels.Bytes(), img.UploadedAt)
}

func (e *DatasetExporter) copyBlob(log *zap.Logger, archive *utils.ArchiveWriter, img *models.Image, name string) error {
	rc, err := e.store.Open(img.StoragePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("export: image file missing, writing labels only",
				zap.String("image_id", img.ID.String()),
				zap.String("path", img.StoragePath),
			)
			return nil
		}
		return internal(err, "failed to open image file")
	}
	defer rc.Close()

	if _, err := archive.CopyFile(name, rc, img.UploadedAt); err != nil {
		return err
	}
	return nil
}

// LabelLine renders one annotation as "<class> x1 y1 ... xn yn" with six
// decimals, coordinates in stored order.
func LabelLine(classIndex int, vertices []models.Vertex) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(classIndex))
	for _, v := range vertices {
		fmt.Fprintf(&b, " %.6f %.6f", v.X, v.Y)
	}
	return b.String()
}

// SplitFilename returns the stem and extension of an uploaded filename. A
// name without an extension gets ".jpg"; a leading dot does not start an
// extension.
func SplitFilename(filename string) (string, string) {
	base := path.Base(filepath.ToSlash(filename))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || ext == "." || ext == "" {
		return base, defaultImageExt
	}
	return stem, ext
}

// yaml11Scalar matches plain scalars that a YAML 1.1 reader (PyYAML, which
// most training tools use) resolves to something other than a string:
// bools, nulls, base-prefixed and sexagesimal numbers, floats, dates.
var yaml11Scalar = regexp.MustCompile(`^(?i:y|yes|n|no|true|false|on|off|null|~)$` +
	`|^[-+]?(?:0b[01_]+|0[0-7_]+|0x[0-9a-fA-F_]+|[0-9][0-9_]*(?::[0-5]?[0-9])*)$` +
	`|^[-+]?(?:[0-9][0-9_]*)?\.[0-9_]*(?:[eE][-+]?[0-9]+)?$` +
	`|^[-+]?[0-9][0-9_]*(?::[0-5]?[0-9])+\.[0-9_]*$` +
	`|^[-+]?\.(?i:inf|nan)$` +
	`|^[0-9]{4}-[0-9]{1,2}-[0-9]{1,2}`)

// DataYAML renders the dataset manifest. Class names are mapped from their
// index in ascending order. A name that either YAML 1.1 or 1.2 would read
// back as another type is double quoted.
func DataYAML(classes []models.ProjectClass) ([]byte, error) {
	str := func(v string) *yaml.Node { return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v} }

	names := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range classes {
		name := str(c.Name)
		if c.Name == "" || yaml11Scalar.MatchString(c.Name) {
			name.Style = yaml.DoubleQuotedStyle
		}
		names.Content = append(names.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(c.ClassIndex)},
			name,
		)
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		str("path"), str("."),
		str("train"), str("images/train"),
		str("val"), str("images/val"),
		str("names"), names,
	}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// stemRegistry keeps archive paths unique per split. A stem seen before in
// the same split gets the first eight hex digits of the image id appended.
type stemRegistry struct {
	used map[string]map[string]bool
}

func newStemRegistry() *stemRegistry {
	return &stemRegistry{used: map[string]map[string]bool{}}
}

func (r *stemRegistry) claim(split, stem string, id uuid.UUID) string {
	seen := r.used[split]
	if seen == nil {
		seen = map[string]bool{}
		r.used[split] = seen
	}
	candidate := stem
	if seen[candidate] {
		suffix := strings.ReplaceAll(id.String(), "-", "")[:8]
		candidate = stem + "_" + suffix
		for n := 2; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%s_%d", stem, suffix, n)
		}
	}
	seen[candidate] = true
	return candidate
}
