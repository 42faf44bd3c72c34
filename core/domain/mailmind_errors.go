package domain

import "errors"

var (
	ErrSkillNotFound   = errors.New("skill not found")
	ErrEmailNotFound   = errors.New("email not found")
	ErrReplyNotFound   = errors.New("reply not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrDuplicateSkill  = errors.New("skill name_en already exists")
	ErrVersionConflict = errors.New("skill was modified concurrently")
	ErrInvalidJobState = errors.New("invalid job state transition")
	ErrJobStateChanged = errors.New("job was modified concurrently")
)
