package core

import "patientcore/pkg/domain"

type (
	// PatientIdentity aliases domain.PatientIdentity for service operations.
	PatientIdentity = domain.PatientIdentity
	// Demographics aliases domain.Demographics.
	Demographics = domain.Demographics
	// Identifier aliases domain.Identifier.
	Identifier = domain.Identifier
	// Document aliases domain.Document.
	Document = domain.Document
	// MergeRequest aliases domain.MergeRequest.
	MergeRequest = domain.MergeRequest
	// MergePair aliases domain.MergePair.
	MergePair = domain.MergePair
	// Violation aliases domain.Violation.
	Violation = domain.Violation
	// ValidationResult aliases domain.ValidationResult.
	ValidationResult = domain.ValidationResult
	// DataSummary aliases domain.DataSummary.
	DataSummary = domain.DataSummary
	// ConflictSet aliases domain.ConflictSet.
	ConflictSet = domain.ConflictSet
	// PatientCounts aliases domain.PatientCounts.
	PatientCounts = domain.PatientCounts
	// PatientSnapshot aliases domain.PatientSnapshot.
	PatientSnapshot = domain.PatientSnapshot
	// MergeDetails aliases domain.MergeDetails.
	MergeDetails = domain.MergeDetails
	// ExecutionResult aliases domain.ExecutionResult.
	ExecutionResult = domain.ExecutionResult
	// ReassignmentCounts aliases domain.ReassignmentCounts.
	ReassignmentCounts = domain.ReassignmentCounts
	// MergeAuditEntry aliases domain.MergeAuditEntry.
	MergeAuditEntry = domain.MergeAuditEntry
	// SearchHit aliases domain.SearchHit.
	SearchHit = domain.SearchHit
	// RecordCategory aliases domain.RecordCategory.
	RecordCategory = domain.RecordCategory
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)
