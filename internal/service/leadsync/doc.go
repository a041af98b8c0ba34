// Package leadsync brings Facebook Lead Ads leads into the CRM.
//
// Leads arrive two ways. A page webhook announces single leads, which are
// fetched and stored by Receive; the HTTP handler has already answered by
// then, so nothing is reported back. A pull sync walks every form of an
// integration for leads created since the last run and reports how many
// were new, how many were already present, and how many failed.
//
// Both paths translate the Graph field list the same way (MapLead) and
// check for an existing lead first by email, then by the Facebook lead ID
// kept in the lead's custom fields.
package leadsync
