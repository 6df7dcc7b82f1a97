package watermark

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobility-ingest/internal/model"
)

// Window is one processing range over a source sequence, inclusive on both
// ends. End < Start marks an empty window.
type Window struct {
	Start int64
	End   int64
}

func (w Window) Empty() bool {
	return w.End < w.Start
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Controller owns the watermark table. For each derived-data job it computes
// the next safe processing window over a monotonically increasing source
// sequence and advances the watermark only when the window's derived writes
// commit.
type Controller struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewController(db *gorm.DB, log zerolog.Logger) *Controller {
	return &Controller{db: db, log: log}
}

// Register upserts the watermark row for a job. An existing row keeps its
// position.
func (c *Controller) Register(ctx context.Context, job, srcTable, srcSequence string) error {
	if err := checkIdent(srcTable); err != nil {
		return err
	}
	if err := checkIdent(srcSequence); err != nil {
		return err
	}
	wm := model.Watermark{
		JobName:     job,
		SrcTable:    srcTable,
		SrcSequence: srcSequence,
	}
	return c.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_name"}}, DoNothing: true}).
		Create(&wm).Error
}

// ops are the storage primitives one protocol pass is built from. Splitting
// them out keeps the window arithmetic and abort behavior independent of the
// database they run against.
type ops struct {
	lock     func() (model.Watermark, error)
	sequence func(name string) (last int64, called bool, err error)
	drain    func(table string) error
	advance  func(end int64) error
}

// Run computes the job's next window and executes fn inside the same
// transaction that advances the watermark. The watermark row is locked for
// the duration, serializing concurrent runs of the same job; an error from fn
// aborts everything, leaving the watermark where it was so the next
// invocation recomputes the same window.
func (c *Controller) Run(ctx context.Context, job string, fn func(tx *gorm.DB, start, end int64) error) (Window, error) {
	var win Window
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		win, err = c.runPass(job, ops{
			lock: func() (model.Watermark, error) {
				var wm model.Watermark
				err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					First(&wm, "job_name = ?", job).Error
				return wm, err
			},
			sequence: func(name string) (int64, bool, error) {
				var seq struct {
					LastValue int64
					IsCalled  bool
				}
				err := tx.Raw(fmt.Sprintf("SELECT last_value, is_called FROM %s", name)).
					Scan(&seq).Error
				return seq.LastValue, seq.IsCalled, err
			},
			drain: func(table string) error {
				return c.drainWriters(ctx, table)
			},
			advance: func(end int64) error {
				return tx.Model(&model.Watermark{}).
					Where("job_name = ?", job).
					Update("last_processed_id", end).Error
			},
		}, func(start, end int64) error {
			return fn(tx, start, end)
		})
		return err
	})
	return win, err
}

// runPass is one protocol pass: lock the watermark row, compute the window
// from the committed sequence position, drain in-flight writers, run the
// derivation, advance. The watermark moves only after fn returns nil; any
// earlier error leaves it untouched and the caller's transaction rolls back.
func (c *Controller) runPass(job string, o ops, fn func(start, end int64) error) (Window, error) {
	wm, err := o.lock()
	if err != nil {
		return Window{}, fmt.Errorf("watermark %s: %w", job, err)
	}
	if err := checkIdent(wm.SrcTable); err != nil {
		return Window{}, err
	}
	if err := checkIdent(wm.SrcSequence); err != nil {
		return Window{}, err
	}

	win := Window{Start: wm.LastProcessedID + 1, End: wm.LastProcessedID}

	last, called, err := o.sequence(wm.SrcSequence)
	if err != nil {
		return win, fmt.Errorf("read sequence %s: %w", wm.SrcSequence, err)
	}
	if !called {
		// sequence never advanced: nothing to process, watermark untouched
		return win, nil
	}

	win.End = last
	if win.Empty() {
		return win, nil
	}

	// Writers already admitted with lower sequence values may not have
	// committed yet. The drain waits them out before fn reads the window.
	if err := o.drain(wm.SrcTable); err != nil {
		return win, err
	}

	if err := fn(win.Start, win.End); err != nil {
		return win, err
	}

	if err := o.advance(win.End); err != nil {
		return win, fmt.Errorf("advance watermark %s: %w", job, err)
	}

	c.log.Info().
		Str("job", job).
		Int64("window_start", win.Start).
		Int64("window_end", win.End).
		Msg("watermark advanced")
	return win, nil
}

// List returns all registered watermarks.
func (c *Controller) List(ctx context.Context) ([]model.Watermark, error) {
	var wms []model.Watermark
	if err := c.db.WithContext(ctx).Order("job_name").Find(&wms).Error; err != nil {
		return nil, err
	}
	return wms, nil
}

// drainWriters briefly takes an exclusive lock on the source table on a
// separate connection. The lock waits for in-flight inserts to commit and is
// released at that transaction's immediate commit; it is never held across
// the derivation work. Needs a second pool connection while Run holds the
// first, which config.Load guards for.
func (c *Controller) drainWriters(ctx context.Context, table string) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", table)).Error
	})
	if err != nil {
		return fmt.Errorf("drain writers on %s: %w", table, err)
	}
	return nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("unsafe identifier %q", name)
	}
	return nil
}
