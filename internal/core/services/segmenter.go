package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go-meeting-transcriber/internal/core/domain"
	"go-meeting-transcriber/internal/core/ports"
)

// segmenter cuts the canonical file into segments below the size ceiling.
// Segment files live in dir, which the caller removes.
type segmenter struct {
	tool    ports.AudioTool
	src     string
	dir     string
	ext     string
	ceiling int64

	minSegment float64
	minTail    float64
	cutRatio   float64

	retry  backoff
	report func(format string, args ...any)

	next int
}

// plan prefers cuts at silence points and falls back to fixed-duration slices.
// The returned segments cover [0, total) in order without gaps or overlaps.
func (s *segmenter) plan(ctx context.Context, silence []float64, total, target float64) ([]domain.Segment, error) {
	if len(silence) == 0 {
		return s.fixed(ctx, 0, total, target)
	}

	var segments []domain.Segment
	start := 0.0
	for _, point := range silence {
		if point <= start || point >= total {
			continue
		}
		if point-start < target*s.cutRatio {
			continue
		}
		seg, err := s.extract(ctx, start, point)
		if err != nil {
			s.discard(segments)
			return nil, err
		}
		if seg.SizeBytes >= s.ceiling {
			// Keep accumulating towards the next silence point.
			removeQuietly(seg.FilePath)
			continue
		}
		segments = append(segments, seg)
		start = point
	}

	if len(segments) == 0 {
		s.report("No suitable silence points, splitting by duration")
		return s.fixed(ctx, 0, total, target)
	}

	tail, err := s.finishTail(ctx, segments, start, total, target)
	if err != nil {
		s.discard(segments)
		return nil, err
	}
	return tail, nil
}

// finishTail appends the audio after the last silence cut.
func (s *segmenter) finishTail(ctx context.Context, segments []domain.Segment, start, total, target float64) ([]domain.Segment, error) {
	remaining := total - start
	if remaining <= 0 {
		return segments, nil
	}

	if remaining <= s.minTail {
		// Too short to stand alone: stretch the previous segment over it.
		last := segments[len(segments)-1]
		merged, err := s.extract(ctx, last.StartTime, total)
		if err != nil {
			return nil, err
		}
		if merged.SizeBytes < s.ceiling {
			removeQuietly(last.FilePath)
			segments[len(segments)-1] = merged
			return segments, nil
		}
		removeQuietly(merged.FilePath)
		if remaining < s.minSegment {
			// The tail alone would be too short, so re-split the previous segment with it.
			removeQuietly(last.FilePath)
			segments = segments[:len(segments)-1]
			start = last.StartTime
		}
		rest, err := s.fit(ctx, start, total)
		if err != nil {
			s.discard(segments)
			return nil, err
		}
		return append(segments, rest...), nil
	}

	seg, err := s.extract(ctx, start, total)
	if err != nil {
		return nil, err
	}
	if seg.SizeBytes < s.ceiling {
		return append(segments, seg), nil
	}
	removeQuietly(seg.FilePath)
	rest, err := s.fixed(ctx, start, total, target)
	if err != nil {
		return nil, err
	}
	return append(segments, rest...), nil
}

// fixed slices [from, to) into pieces of roughly target seconds. A remainder shorter
// than minSegment is folded into the piece before it.
func (s *segmenter) fixed(ctx context.Context, from, to, target float64) ([]domain.Segment, error) {
	if target <= 0 {
		target = to - from
	}
	var segments []domain.Segment
	for current := from; current < to; {
		end := min(current+target, to)
		if to-end < s.minSegment {
			end = to
		}
		parts, err := s.fit(ctx, current, end)
		if err != nil {
			s.discard(segments)
			return nil, err
		}
		segments = append(segments, parts...)
		current = end
	}
	return segments, nil
}

// fit extracts [start, end) and halves it until every piece is under the ceiling.
func (s *segmenter) fit(ctx context.Context, start, end float64) ([]domain.Segment, error) {
	seg, err := s.extract(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if seg.SizeBytes < s.ceiling {
		return []domain.Segment{seg}, nil
	}
	removeQuietly(seg.FilePath)

	mid := start + (end-start)/2
	if mid-start < s.minSegment {
		return nil, fmt.Errorf("%w: %.2fs-%.2fs is %d bytes", domain.ErrSegmentTooLarge, start, end, seg.SizeBytes)
	}
	left, err := s.fit(ctx, start, mid)
	if err != nil {
		return nil, err
	}
	right, err := s.fit(ctx, mid, end)
	if err != nil {
		s.discard(left)
		return nil, err
	}
	return append(left, right...), nil
}

func (s *segmenter) extract(ctx context.Context, start, end float64) (domain.Segment, error) {
	index := s.next
	s.next++
	path := filepath.Join(s.dir, fmt.Sprintf("segment_%03d.%s", index, s.ext))

	err := s.retry.run(ctx, func() error {
		return s.tool.Extract(ctx, s.src, path, start, end-start)
	})
	if err != nil {
		removeQuietly(path)
		return domain.Segment{}, fmt.Errorf("extract segment %.2fs-%.2fs: %w", start, end, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.Segment{}, fmt.Errorf("stat segment: %w", err)
	}
	return domain.Segment{
		Index:     index,
		StartTime: start,
		EndTime:   end,
		SizeBytes: info.Size(),
		FilePath:  path,
	}, nil
}

func (s *segmenter) discard(segments []domain.Segment) {
	for _, seg := range segments {
		removeQuietly(seg.FilePath)
	}
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
