package repository

var MapError = mapError
