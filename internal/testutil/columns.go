package testutil

// FAQCols is the column order of the faq fixture table.
var FAQCols = []string{"ID", "Name", "Answer", "CategoryID", "ShowInSearch", "Created"}

// RelatedCols is the column order of related fixture tables.
var RelatedCols = []string{"ID", "Title", "Content"}

// FileCols is the column order of the File fixture table.
var FileCols = []string{"ID", "Title", "Filename"}
