// Package fiscal contains the domain model of the fiscal-document integrity
// core: sealed documents and their security metadata, audit log entries,
// numbering series, and the error taxonomy shared by all components.
package fiscal
