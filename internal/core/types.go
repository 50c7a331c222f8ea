package core

import "panelflow/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Panel              = domain.Panel
	Project            = domain.Project
	Building           = domain.Building
	Item               = domain.Item
	Status             = domain.Status
	Role               = domain.Role
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	ErrNotFound        = domain.ErrNotFound
)

const (
	EntityPanel    = domain.EntityPanel
	EntityProject  = domain.EntityProject
	EntityBuilding = domain.EntityBuilding
	EntityItem     = domain.EntityItem
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
