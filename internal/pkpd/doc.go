// Package pkpd provides the closed-form pharmacokinetic/pharmacodynamic pieces of the
// simulation: conversion of population summary statistics to lognormal parameters,
// the %fT>MIC exposure approximation, and input validation.
//
// Main Types:
//   - Lognormal: (mu, sigma) of the normal distribution underlying a lognormal parameter
//   - Exposure: tagged result of one exposure evaluation (value or DomainError)
//
// Usage:
//
//	mu, sigma := pkpd.LognormalParams(7.8, 5.4)
//
//	exp := pkpd.FTimeAboveMIC(regimen, patient, 1.0)
//	if exp.Meets(55) {
//	    // patient attains the target
//	}
package pkpd
