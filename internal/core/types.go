package core

import "comptrack/pkg/domain"

// Aliases keep service call sites free of the domain qualifier.
type (
	Project          = domain.Project
	System           = domain.System
	Subsystem        = domain.Subsystem
	Tag              = domain.Tag
	InspectionRecord = domain.InspectionRecord
	PunchItem        = domain.PunchItem
	PreservationTask = domain.PreservationTask
	Insight          = domain.Insight
	ImportLog        = domain.ImportLog
	PersistentStore  = domain.PersistentStore
)
